// Package mongo connects to MongoDB with the v2 driver. It backs the
// "mongo" driver of the kv package.
package mongo
