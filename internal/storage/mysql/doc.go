// Package mysql persists the invocation journal. It ships a JSON-lines file
// implementation for single-node use and a MySQL implementation with embedded
// schema migrations, plus the connection helpers shared with the task store.
package mysql
