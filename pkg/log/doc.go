/*
Package log provides structured logging for mcci using zerolog.

A single global Logger is configured once by Init from the serve command.
Long-lived components take a child logger tagged with their name:

	logger := log.WithComponent("dispatch")
	logger.Info().Dur("interval", interval).Msg("Sweeper started")

The core data structures (fibheap, linearhash, bank, server) never reach for
the global logger. They accept a zerolog.Logger through an option and default
to zerolog.Nop(), so tests and embedders stay quiet unless they opt in.

# Levels

	trace   per-subscription bank activity
	debug   rejected and dropped requests, expiry sweeps
	info    lifecycle (startup, shutdown, attach, detach)
	warn    failed deliveries, full client buffers, fingerprint overwrite
	error   broken invariants and storage failures

# Output

Console output is the default; JSONOutput switches to one JSON object per
line for log shippers:

	{"level":"info","component":"api","addr":"127.0.0.1:7420","time":"...","message":"gRPC server listening"}
*/
package log
