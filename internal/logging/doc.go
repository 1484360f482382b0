// Package logging provides leveled logging on top of the standard
// library log package, controlled by the LOG_LEVEL and DEBUG
// environment variables.
package logging
