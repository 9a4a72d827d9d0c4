// Package observability provides structured logging, Prometheus metrics,
// tracing spans and health probes for the access engine.
//
// Logging:
//
//	logger := observability.NewLogger(observability.ParseLogLevel("info"), os.Stderr)
//	logger.WithAccess(userID, projectID).Info("effective role resolved")
//
// Metrics are registered on a caller-supplied registry and exposed with
// Handler. A nil *Metrics is valid and records nothing.
//
// Health:
//
//	checker := observability.NewHealthChecker()
//	checker.AddCheck("store", true, store.HealthCheck)
//	observability.RegisterHealthRoutes(router, checker)
//
// A failing critical check makes readiness return 503. Failing optional
// checks report the service as degraded with a 200.
package observability
