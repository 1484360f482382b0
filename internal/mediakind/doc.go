// Package mediakind defines attachment kinds, file-name variant ranks,
// and magic-byte sniffing for the media pipeline.
package mediakind
