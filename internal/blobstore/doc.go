// Package blobstore provides the raw attachment blob sources: a SQLite
// database of voice payloads keyed by (sender, timestamp), and
// retrying file reads for encrypted image blobs under the account root.
package blobstore
