// Package policy holds the policy modes and the store that keeps the active
// one.
//
// A Config is a fully-formed, immutable bundle of thresholds, risk weights,
// action impact table and mandatory-review actions. The Store publishes one
// Config at a time through an atomic pointer: evaluations load a snapshot
// once and keep using it even if the mode changes mid-evaluation. Every write
// (mode change, learned threshold adjustment, policy pack reload) builds and
// validates a new Config before swapping it in; a rejected write returns a
// *ConfigurationError and leaves the previous snapshot active.
//
// # Modes
//
// Four modes are built in: GENERAL_AI, FINANCIAL_SERVICES, HEALTHCARE and
// LEGAL. A YAML policy pack can override any field of a built-in mode or add
// new modes:
//
//	catalog, err := policy.LoadCatalog("policies.yaml", nil, policy.DefaultThresholdBounds())
//	store, err := policy.NewStore(catalog, policy.ModeGeneralAI, policy.DefaultThresholdBounds())
//
// A Watcher reloads the pack into the store when the file changes.
package policy
