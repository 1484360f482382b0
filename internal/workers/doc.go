// Package workers derives worker pool sizes from available hardware
// parallelism, with environment overrides and clamping.
package workers
