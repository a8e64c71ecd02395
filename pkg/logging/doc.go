// Package logging is the structured logging facade shared by every gateway
// component: a small severity enum over log/slog, subsystem-tagged helpers
// (Debug/Info/Warn/Error), and an Audit helper for security-sensitive events.
//
// Call Init once at process startup; Debug/Info/Warn/Error fall back to a
// stderr logger at info level if Init was never called.
package logging
