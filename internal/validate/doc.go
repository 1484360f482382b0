// Package validate confirms that pipeline output files are well-formed
// media before they are cached: magic-byte checks plus a full decode
// for images, container header checks for audio. Unusable paths go
// into a session-scoped negative cache.
package validate
