// Package variant normalizes attachment file names and enumerates the
// on-disk renditions (big/original/high/cache/thumbnail) of a logical
// attachment in preference order.
package variant
