// Package logging provides structured logging for taskd on top of Zap.
//
// # Overview
//
// The Logger adds:
//   - A Trace level (-2, below Debug)
//   - Stdout and OpenTelemetry outputs, usable together
//   - Context field injection (trace_id, request.id, note.id, extraction.id)
//   - Secret redaction at the encoder
//   - Level-aware sampling where errors are never dropped
//
// # Usage
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithNoteID(ctx, note.ID)
//	logger.Info(ctx, "note processed", zap.Int("tasks.created", n))
//
// Output:
//
//	{
//	  "ts": "2026-03-02T10:15:30Z",
//	  "level": "info",
//	  "msg": "note processed",
//	  "service": "taskd",
//	  "note.id": "note-42",
//	  "tasks.created": 2
//	}
//
// # Secret Redaction
//
// Field names such as api_key and authorization are always redacted, as are
// string values matching a bearer token or key=value pattern. Use Secret or
// RedactedString when logging a credential on purpose:
//
//	logger.Debug(ctx, "provider configured", logging.Secret("api_key", cfg.APIKey))
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//	tl.AssertNoSecrets(t)
//
// Logger is safe for concurrent use. Child loggers (With, Named) do not
// affect their parent.
package logging
