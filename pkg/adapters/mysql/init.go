// Package mysql provides a MySQL/MariaDB source adapter for leapdump.
//
// This file registers the MySQL adapter with the adapter registry.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/leapdump/pkg/adapters/mysql"
package mysql

import (
	"log/slog"

	"github.com/leapstack-labs/leapdump/pkg/adapter"
)

func init() {
	adapter.Register("mysql", func(logger *slog.Logger) adapter.Source { return New(logger) })
}
