// Package health provides liveness, readiness and version endpoints.
//
// Liveness (/health) only reports that the process is serving. Readiness
// (/ready) runs every registered component check concurrently, each under
// its own timeout, and answers 503 when any of them is unhealthy.
//
// The package ships checks for the firewall's components: the policy
// store, SQLite stores, the audit sink backlog and the last audit chain
// verification.
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("policy", health.PolicyCheck(store))
//	checker.RegisterCheck("audit_chain", health.ChainCheck(scheduler.LastReport))
//	health.Register(mux, checker, version, commit, buildTime)
package health
