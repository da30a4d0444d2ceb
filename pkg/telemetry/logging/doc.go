// Package logging builds the service's structured logger.
//
// Loggers are plain *slog.Logger values so every package can accept one
// through a WithLogger option. The handler installed by New adds the
// request id, user and tier stored in a record's context, and masks
// credentials such as bearer tokens and API keys.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.InfoContext(ctx, "Request processed", "duration_ms", 12)
//	// {"level":"INFO","msg":"Request processed","request_id":"req-123","duration_ms":12}
package logging
