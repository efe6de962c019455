package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

const defaultService = "dogxsale"

// Setup installs a JSON slog handler as the process default and returns it.
// Every line carries the service name (falling back to "dogxsale" when blank)
// and, when provided, the DGX_ENV deployment environment. The stdlib logger is
// bridged onto the same handler so third-party packages that still use
// log.Printf land in the structured stream.
func Setup(service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: false,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	if service = strings.TrimSpace(service); service == "" {
		service = defaultService
	}
	attrs := []slog.Attr{slog.String("service", service)}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}

	base := slog.New(handler).With(withArgs...)
	slog.SetDefault(base)

	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}
