// Package logging wraps zap for tutorrag.
//
// Logger methods take a context and prepend its correlation fields: the
// OTel trace and span ids, the HTTP request id and the document being
// ingested.
//
//	cfg, err := logging.ConfigFor(os.Getenv("LOG_LEVEL"), "json")
//	logger, err := logging.NewLogger(cfg, nil)
//	ctx = logging.WithRequestID(ctx, "req-42")
//	logger.Info(ctx, "ingest accepted", zap.Int("bytes", n))
//
// Output goes to stdout, to an OpenTelemetry log provider through the
// otelzap bridge, or both. Entries below Error are sampled; errors never are.
//
// Secrets are redacted twice: config.Secret never prints its value, and the
// encoder replaces fields whose key looks sensitive (api_key,
// service_role_key, dsn, ...) or whose value matches a credential pattern
// such as a bearer token, a Google API key or a Postgres URL with a password.
//
// Packages that only need a plain logger take *zap.Logger; pass
// Logger.Underlying(). Tests use NewTestLogger.
package logging
