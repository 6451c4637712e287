// SPDX-License-Identifier: BSD-3-Clause

package log

import (
	"log/slog"

	"github.com/rs/zerolog"
	slogzerolog "github.com/samber/slog-zerolog/v2"
)

// New creates a structured logger backed by a zerolog console writer at the
// given level. Unlike the BMC ancestor of this package, there is no
// package-level global logger: every long-running component is handed its
// own *slog.Logger at construction and threads it explicitly, matching this
// daemon's "no hidden context" convention.
func New(level slog.Level) *slog.Logger {
	zeroLogger := zerolog.
		New(zerolog.NewConsoleWriter()).
		With().
		Timestamp().
		Logger()

	return slog.New(slogzerolog.Option{Level: level, Logger: &zeroLogger}.NewZerologHandler())
}
