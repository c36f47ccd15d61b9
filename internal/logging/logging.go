// Package logging wraps zap with a runtime-adjustable level. The level
// endpoint lets operators turn on debug logging for a live conversation
// without a restart.
package logging

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger settings.
type Config struct {
	// Level is the initial level: debug, info, warn, error.
	Level string
	// Format selects the encoder: json or console.
	Format string
	// Environment toggles development niceties (DPanic, dev encoder).
	Environment string
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{Level: "info", Format: "json", Environment: "development"}
}

// Logger is a zap.Logger whose level can change at runtime. Children
// made with Named and With share the parent's level.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// New builds a Logger writing to stderr.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	initial, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	level := zap.NewAtomicLevelAt(initial)

	production := cfg.Environment == "production"

	encCfg := zap.NewDevelopmentEncoderConfig()
	if production {
		encCfg = zap.NewProductionEncoderConfig()
	}
	var enc zapcore.Encoder
	if cfg.Format == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if !production {
		opts = append(opts, zap.Development())
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	return &Logger{Logger: zap.New(core, opts...), level: level}, nil
}

// ParseLevel converts a level name to a zapcore.Level.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "dpanic":
		return zapcore.DPanicLevel, nil
	case "panic":
		return zapcore.PanicLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown level: %s", name)
	}
}

// SetLevel changes the level for this logger and every child.
func (l *Logger) SetLevel(name string) error {
	parsed, err := ParseLevel(name)
	if err != nil {
		return err
	}
	previous := l.level.String()
	l.level.SetLevel(parsed)
	l.Info("log level changed",
		zap.String("from", previous),
		zap.String("to", parsed.String()),
	)
	return nil
}

// GetLevel reports the current level name.
func (l *Logger) GetLevel() string {
	return l.level.String()
}

type levelResponse struct {
	Level string `json:"level"`
	Error string `json:"error,omitempty"`
}

// ServeHTTP is the level endpoint: GET reads the level, PUT or POST
// with a level query parameter (or form field) sets it.
func (l *Logger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		writeLevel(w, http.StatusOK, levelResponse{Level: l.GetLevel()})

	case http.MethodPut, http.MethodPost:
		name := r.URL.Query().Get("level")
		if name == "" {
			if err := r.ParseForm(); err == nil {
				name = r.FormValue("level")
			}
		}
		if name == "" {
			writeLevel(w, http.StatusBadRequest, levelResponse{Error: "level parameter required"})
			return
		}
		if err := l.SetLevel(name); err != nil {
			writeLevel(w, http.StatusBadRequest, levelResponse{Error: err.Error()})
			return
		}
		writeLevel(w, http.StatusOK, levelResponse{Level: l.GetLevel()})

	default:
		writeLevel(w, http.StatusMethodNotAllowed, levelResponse{Error: "method not allowed"})
	}
}

func writeLevel(w http.ResponseWriter, status int, resp levelResponse) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Named returns a named child sharing this logger's level.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name), level: l.level}
}

// With returns a child with preset fields, sharing this logger's level.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), level: l.level}
}

// Zap exposes the embedded zap.Logger for collaborators that take the
// plain type.
func (l *Logger) Zap() *zap.Logger {
	return l.Logger
}
