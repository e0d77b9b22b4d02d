// Package service is the firewall's application layer.
//
// A Service evaluates requests against the active policy snapshot and hands
// every verdict to the audit sink, the threshold learner, Prometheus metrics
// and the in-process Counters. The HTTP server and the aegis CLI both talk to
// the firewall only through this package.
//
// # Evaluation
//
//	svc, err := service.New(service.Options{
//		Engine:  engine.MustNew(engine.DefaultConfig()),
//		Policy:  store,
//		Sink:    auditSink,
//		Audit:   auditStorage,
//		Learner: learner,
//		Metrics: collector,
//		Tracer:  tracer,
//	})
//	ev, err := svc.Evaluate(ctx, &firewall.Request{...})
//
// Evaluate returns a *firewall.ValidationError for malformed requests and a
// verdict for everything else. Audit failures are logged and counted but
// never fail an evaluation; Run reports the sink's asynchronous failures.
//
// # Outcomes
//
// ReportOutcome forwards a human decision to the learner. When the learner no
// longer remembers the evaluation, the original verdict is recovered from the
// audit trail.
package service
