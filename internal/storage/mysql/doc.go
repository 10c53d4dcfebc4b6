// Package mysql provides data access helpers backed by MySQL. It owns the
// schema for the signing nonce high-water mark and a file-backed fallback
// used when the daemon runs without a database.
package mysql
