// Package decrypt recovers plaintext from the chat client's encrypted
// attachment blobs. The scheme is auto-detected by trying each known
// algorithm newest-first and accepting the first output with a
// recognizable image header.
package decrypt
