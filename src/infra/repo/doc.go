// Package repo contains the implementations of the persistence ports.
//
//   - PostgresRepository: pgx pool, with squirrel for queries whose shape
//     depends on the caller (status filters, limits, multi-row inserts).
//   - MemoryRepository: process-local store selected with APP_DB_DRIVER=memory.
//
// Both keep the queue's total order (priority DESC, priority_set_at, created_at, id)
// and return fresh copies, never shared pointers.
package repo
