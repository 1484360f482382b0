// Package cacheindex maintains the process-local map from content
// identifier to resolved output path, lazily built by scanning the
// output cache directories once.
package cacheindex
