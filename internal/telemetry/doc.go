// Package telemetry wires OpenTelemetry tracing and metrics for taskd.
//
// Spans and metric instruments are created by the packages that own them
// (extraction, provider, http) through the global providers installed by New.
// When telemetry is disabled the global no-op providers stay in place, so
// instrumented code needs no conditionals.
//
//	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
