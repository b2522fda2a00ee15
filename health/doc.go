// Package health reports the readiness of flowdiffd and its dependencies.
//
// A Checker runs a set of named probes (flow store, component catalog,
// NATS connection) and folds their results into a single Status using
// Aggregate. Failures of required probes make the aggregate unhealthy;
// failures of optional probes only degrade it.
//
//	checker := health.NewChecker("flowdiffd", 2*time.Second)
//	checker.Add("catalog", provider.Ping)
//	checker.AddOptional("nats", natsProbe)
//	status := checker.Run(ctx)
//
// Probe error messages are sanitized before they leave the process so that
// URLs, paths, addresses and credentials are not exposed on /health.
package health
