// Package speech converts proprietary speech-codec voice blobs into
// playable MP3 files. PCM decoding runs in an external subprocess with
// a bounded timeout; MP3 encoding runs in-process through libmp3lame,
// streaming fixed-size sample-aligned chunks with heartbeat progress.
package speech
