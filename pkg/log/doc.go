/*
Package log provides structured logging for the agent using zerolog.

The package wraps zerolog to provide JSON or console-formatted logging with
a package-level global logger, context loggers tagged by task/connection/
child-pid, and a handful of level-scoped helper functions.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	log.Info("agent starting")

	connLog := log.WithConnID(sessionID)
	connLog.Info().Str("state", "handshake").Msg("connecting to server")

	taskLog := log.WithTaskID(taskID)
	taskLog.Error().Err(err).Msg("collector returned fatal error")

# Context loggers

  - WithComponent: tag logs with a subsystem name (wire, protocol, worker, ...)
  - WithTaskID: tag logs with the task a worker goroutine is running
  - WithConnID: tag logs with a per-connection session id, stable across a
    single handshake attempt but not across reconnects
  - WithChild: tag logs with a supervised child process's pid

# Notes

Never log secrets or raw task option values that might carry credentials in
RUNCMD strings; log the option type, not its value, when in doubt.
*/
package log
