/*
Package log provides structured logging for netpanel using zerolog.

A single package-level Logger is configured once at startup with Init and
shared by every package. Child loggers add context fields:

	log.WithComponent("api")       // component=api
	log.WithCollection("snapshot") // component=collection collection=snapshot

# Configuration

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

Level is one of debug, info, warn or error and is applied globally through
zerolog.SetGlobalLevel. The console writer is the default; JSONOutput
switches to one JSON object per line for log shippers.

Before Init runs the Logger writes JSON to stdout, so packages can log from
tests without setup.

# Conventions

  - Messages start with a capital letter and carry no trailing period
  - Errors go through .Err(err), never formatted into the message
  - Request-scoped fields (method, path, status, user) are added by the
    HTTP access log middleware, not by handlers
  - Secrets, password hashes and tokens are never logged
*/
package log
