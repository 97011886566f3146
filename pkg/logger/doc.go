// Package logger builds *slog.Logger instances for the storefront client.
//
// New creates a text or JSON handler, applies static attributes and wraps the
// result in LogHandlerDecorator, which runs registered ContextExtractor
// callbacks on every record. The HTTP client stores a request id in the
// outbound request context; registering httpclient.RequestIDExtractor makes
// every log line emitted while that request is in flight carry it.
//
// Attribute helpers in attr.go (Error, Component, Generation, Status, …) keep
// key names consistent across packages.
//
//	log := logger.New(
//	    logger.WithDevelopment("storefront"),
//	    logger.WithContextExtractors(httpclient.RequestIDExtractor),
//	)
//	log.InfoContext(ctx, "cart synced", logger.Component("cart"))
package logger
