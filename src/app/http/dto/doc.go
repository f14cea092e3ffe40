// Package dto contains Data Transfer Objects for HTTP requests and responses.
//
// DTOs are separate from domain entities so the wire format used by the bot
// and the pages can evolve without touching the core.
//
// Naming convention:
//   - Request types: <Action><Resource>Request (e.g., CreateSubmissionRequest)
//   - Response types: <Resource>Response (e.g., SubmissionResponse)
package dto
