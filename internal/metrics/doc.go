// Package metrics defines Prometheus metrics for the media pipeline.
// All metrics are registered with the default registry via promauto.
package metrics
