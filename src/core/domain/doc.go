// Package domain contains the core domain model for the track rating service.
//
// This package defines:
//   - Entities: Submission, Track, Evaluation and the Identity of a caller
//   - Value objects: Priority tiers, statuses, roles, criteria, the playback clock
//   - Pure algorithms: queue ordering, playback position, score aggregation, ranking
//   - Domain errors: business rule violations shared by every layer
//
// Rules for this package:
//   - No external dependencies except the standard library
//   - No infrastructure concerns (database, HTTP, websockets)
//   - Functions here never read the wall clock; callers pass "now" in
//
// Example:
//
//	sorted := domain.SortQueue(submissions)
//	pos, ok := domain.PositionOf(submissions, id)
//
//	pb := domain.StartPlayback(true, nowMS)
//	pb.PositionAt(nowMS + 3000) // 3000
package domain
