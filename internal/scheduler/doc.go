// Package scheduler decides when a decision must be re-evaluated and runs
// the evaluation engine for it.
//
// A decision needs evaluation when it was flagged dirty, was never
// evaluated, was last evaluated longer ago than the staleness limit, or is
// close to its expiry date and has not been checked recently. RETIRED
// decisions and manually invalidated ones are left alone unless an
// evaluation is forced.
//
// Evaluations for the same decision are serialized in-process by a keyed
// lease and across processes by the store's version column. After an
// evaluation changes a decision's health or lifecycle, its direct
// dependents are flagged dirty; the cascade never goes further than one
// hop per evaluation.
package scheduler
