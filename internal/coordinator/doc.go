// Package coordinator provides per-key in-flight deduplication, a
// bounded worker pool for heavy decrypt/transcode operations, and
// per-task wall-clock timeouts.
package coordinator
