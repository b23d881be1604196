package audit

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

import "context"

// Store persists entries append-only. There is deliberately no update or
// delete: once Append returns nil the entry can only be read.
//
// Append fails only when the backend is unavailable. Query errors are real
// errors and must reach the caller.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	QueryByDay(ctx context.Context, day Day, entityTypes []string) (Grouped, error)
	QueryRecent(ctx context.Context, limit int) ([]Entry, error)
}
