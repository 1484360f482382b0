// Package pipeline is the public entry point of the chat media
// pipeline: it turns attachment references into locally usable media
// files, composing variant resolution, decryption, voice transcoding,
// validation, caching, and bounded concurrent execution.
package pipeline
