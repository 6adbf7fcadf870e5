// Package metrics provides observability hooks for the asset cache and the
// state store.
//
// Components receive a Recorder through their options and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	cache := assets.New(root, assets.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// The CLI activates the Prometheus recorder and serves HTTPHandler when
// metrics.listen is configured.
package metrics
