// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// This package centralizes all application configuration and provides consistent
// logging throughout the application lifecycle.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig].
// The following environment variables are supported:
//
//   - CHATMEDIA_SOURCE_DIR: Directory of encrypted attachment blobs (default: ./source)
//   - CHATMEDIA_OUTPUT_DIR: Directory for resolved media output (default: ./resolved)
//   - CHATMEDIA_VOICE_DB: Path to the voice message SQLite database (default: unset)
//   - CHATMEDIA_TEMP_DIR: Scratch directory for transcoding (default: system temp)
//   - CHATMEDIA_DECODER_DIR: Extra directory searched for the voice decoder binary
//   - CHATMEDIA_METRICS_PORT: Prometheus metrics port (default: 9090)
//   - CHATMEDIA_METRICS_ENABLED: Enable the metrics side server (default: false)
//   - CHATMEDIA_XOR_KEY: Hex XOR key byte for blob decryption
//   - CHATMEDIA_AES_KEY: Hex 16-byte AES key for the newer decryption scheme
//   - PIPELINE_WORKERS: Override for the heavy-operation worker pool size
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//
// # Directory Setup
//
// The output directory is required and must be writable. The source
// directory is checked but a missing source is only a warning, since a
// voice-only run never reads it. The voice database is probed and voice
// resolution is disabled when it is absent.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup
