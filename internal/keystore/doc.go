// Package keystore holds the decryption secrets (byte-XOR key and
// optional AES-128 key) for a pipeline session, loaded once from
// configuration and exposed read-only.
package keystore
