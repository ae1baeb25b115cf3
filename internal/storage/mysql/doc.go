// Package mysql provides repositories and data access helpers backed by MySQL.
// It encapsulates schema migrations and strongly typed queries for persisting
// session state, knowledge chunks, and access tokens. A file-backed in-memory
// driver is included for development without a database.
package mysql
