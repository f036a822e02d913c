// Package logger builds the *slog.Logger used across the membership service.
//
// New returns a logger whose handler is wrapped by a decorator that pulls
// request scoped values (request id, session id, user id) out of the context
// on every record. Attribute helpers in attr.go keep key names consistent
// between the lifecycle manager, the payment adapter and the HTTP layer.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.AppEnv, "nagoyameshi"),
//		logger.WithContextValue("request_id", requestIDKey{}),
//	)
//	log.InfoContext(ctx, "membership upgraded",
//		logger.UserID(user.ID),
//		logger.ChargeID(attempt.ID),
//	)
package logger
