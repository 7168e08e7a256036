// Package risk derives a 0–100 risk score for a machine from its open alerts.
//
// Score is pure: each open alert contributes its severity weight
// (critical 10, high 7, medium 4, low 1), the sum is normalised against a
// ceiling and capped at 100. Service reads the open alerts from the store on
// every call; scores are never cached.
//
// Level thresholds: critical ≥80, high ≥60, medium ≥30, low otherwise.
package risk
