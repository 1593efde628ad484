// Package datatrack instruments units of work inside a running process.
//
// A Monitor wraps functions and code blocks, measures their wall-clock
// duration, resident-memory delta and CPU time, and forwards every
// finished Measurement to a set of sinks: a structured log record, the
// Prometheus metrics registry, and the live dashboard. Measurements that
// exceed the configured time or memory thresholds raise alerts through a
// single notification channel (log, chat webhook, email or SMS).
//
// # Quick Start
//
//	cfg, err := config.Load("datatrack.yaml")
//	if err != nil {
//		log.Printf("using defaults: %v", err)
//	}
//	mon, err := datatrack.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	load := mon.Track("load", loadRecords, datatrack.WithTimeThreshold(2*time.Second))
//	if err := load(); err != nil {
//		return err
//	}
//
// Functions returning a value use Wrap:
//
//	parse := datatrack.Wrap(mon, "parse", parseFile)
//	rows, err := parse()
//
// # Scoped Blocks
//
// A Scope measures an arbitrary block. Enter returns a Guard holding the
// per-invocation state; Done records the block's error and any panic in
// progress:
//
//	func transform() (err error) {
//		g := mon.Scope("transform").Enter()
//		defer g.Done(&err)
//		...
//	}
//
// The same Scope can also decorate a function with Decorate.
//
// # Outcome Passthrough
//
// Instrumentation never changes the result of the measured code. Errors are
// returned unchanged, so errors.Is and errors.As keep working, and panics are
// recorded as failures and then re-raised with the original value. Failures
// inside sinks or alert channels are logged and never reach the caller.
//
// # HTTP Integration
//
//	http.Handle("/api/", mon.HTTPMiddleware("api")(apiHandler))
//
// Each request is one invocation; responses with status 500 or above count
// as failures.
package datatrack
