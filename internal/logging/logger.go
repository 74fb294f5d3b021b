// Package logging defines the structured-logging facade shared by the server
// packages. The interface is deliberately small so that the concrete backend
// (slog today) can be swapped without touching call sites.
package logging

import "context"

// Logger logs structured messages. Variadic args are alternating key-value
// pairs, as in:
//
//	log.Info(ctx, "listening", "addr", addr)
type Logger interface {
	// Info records routine operational events.
	Info(ctx context.Context, msg string, args ...any)

	// Warn records unexpected but recoverable conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error records failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a derived logger that attaches the given key-value pairs
	// to every subsequent record.
	With(args ...any) Logger
}
