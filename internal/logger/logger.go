// Package logger configures the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

// Init builds the default slog logger.
// Development: text output at debug level. Production: JSON at info level.
// When sentryDSN is set, error records are also forwarded to Sentry.
func Init(isProd bool, sentryDSN string) *slog.Logger {
	l := New(os.Stdout, isProd, sentryDSN)
	slog.SetDefault(l)
	return l
}

// New builds a logger writing to w without touching the global default.
func New(w io.Writer, isProd bool, sentryDSN string) *slog.Logger {
	var handlers []slog.Handler

	if isProd {
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	} else {
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if sentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              sentryDSN,
			TracesSampleRate: 1.0,
		})
		if err == nil {
			handlers = append(handlers, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
		}
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(slogmulti.Fanout(handlers...))
}
