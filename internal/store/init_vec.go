//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// Registers the sqlite-vec extension with every new connection. Without this
// tag the vec0 probe fails and the store uses the Go-side cosine scan.
func init() {
	vec.Auto()
}
