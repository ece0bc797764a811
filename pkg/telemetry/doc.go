// Package telemetry provides observability for hookguard: structured logging
// (zerolog), tracing (OpenTelemetry), metrics (Prometheus) and event
// publishing.
//
// # Usage
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// Every dispatched instruction runs through Instrument, which opens a span
// named after the instruction, times it and counts it:
//
//	err := tel.Instrument(ctx, "execute", func(ctx context.Context) error {
//	    return processor.ExecuteHook(ctx, tx, accounts, amount)
//	})
//
// # Metrics
//
// All metrics live in a private registry under the configured namespace:
//
//   - hooks_executed_total{result}: approved, rejected or failed hook runs
//   - policy_rejections_total{code}: rejections by error code
//   - instructions_total{instruction,status}
//   - instruction_duration_seconds{instruction}
//   - allow_list_size: list size after each append
//   - errors_total{class,code}
//
// The registry is exposed through Handler, and StartMetricsServer serves it
// for long-running commands.
//
// # Events
//
// The EventPublisher emits hook.executed, hook.rejected,
// descriptor.initialized and allowlist.updated. Events are never persisted;
// subscribers decide what to do with them.
//
// # Tracing
//
// Spans are exported to stderr (stdout exporter) or an OTLP gRPC collector.
// Tracing is off in DefaultConfig.
package telemetry
