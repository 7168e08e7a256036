// Package api implements the HTTP REST API for the healthwatch server.
//
// New(deps) returns an http.Handler that serves:
//
//	GET  /api/v1/health                      — fleet summary and store reachability
//	GET  /api/v1/machines                    — live machines with their risk score
//	GET  /api/v1/machines/{id}               — last snapshot, risk and per-check status; 404 if unknown or stale
//	GET  /api/v1/machines/{id}/alerts        — alert history, ?state=open|resolved|all (default all)
//	GET  /api/v1/machines/{id}/risk          — risk score from the machine's open alerts
//	GET  /api/v1/alerts                      — fleet-wide alert list, same ?state= filter
//	POST /api/v1/alerts/{id}/resolve         — manually resolve one alert
//
// All endpoints respond with Content-Type: application/json and return 405
// for unsupported methods. Alert and risk routes read the alert store on
// every request; they do not require the machine to be in the fleet view.
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
