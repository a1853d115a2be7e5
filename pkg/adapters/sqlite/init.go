// Package sqlite provides a SQLite source adapter for leapdump, backed by the
// pure-Go modernc.org/sqlite driver.
//
//	import _ "github.com/leapstack-labs/leapdump/pkg/adapters/sqlite"
package sqlite

import (
	"log/slog"

	"github.com/leapstack-labs/leapdump/pkg/adapter"
)

func init() {
	adapter.Register("sqlite", func(logger *slog.Logger) adapter.Source { return New(logger) })
}
