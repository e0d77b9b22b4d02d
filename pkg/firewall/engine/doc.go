// Package engine combines the firewall components into a single verdict.
//
// Evaluate runs claim extraction, evidence assessment, confidence alignment,
// risk scoring, the safety rule set and the governance rule set against one
// policy snapshot, then resolves a verdict with a fixed precedence (see
// Resolve). The result is a pure function of the request and the snapshot;
// evaluation IDs and timestamps are added by the caller.
//
//	eng := engine.MustNew(engine.DefaultConfig())
//	result, err := eng.Evaluate(req, store.Snapshot())
package engine
