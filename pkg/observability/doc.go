/*
Package observability turns trial lifecycle events into logs and Prometheus metrics.

Both are exposed as domain.TrialHooks, so they can be merged and handed to the
session manager and the runner:

	metrics, _ := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := observability.LogHooks(logger).Merge(metrics.Hooks())
*/
package observability
