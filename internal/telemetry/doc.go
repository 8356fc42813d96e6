// Package telemetry sets up OpenTelemetry tracing and metrics for tutorrag.
//
// Spans and OTel metrics go to an OTLP collector over gRPC or
// http/protobuf. Vector-store counters are Prometheus metrics instead and
// are served at /metrics; see package vectorstore.
//
//	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Exporter failures do not stop the service: New returns a degraded
// instance and the global no-op providers stay in place.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory and
// can be passed to rag.WithInstrumentation.
package telemetry
