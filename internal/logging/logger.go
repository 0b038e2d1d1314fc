package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how verbosely the application logs.
type Options struct {
	Level string
	// File, when set, sends output to a size-rotated file instead of stderr.
	File      string
	MaxSizeMB int
	JSON      bool
}

// New builds a logrus logger from opts. The returned closer releases the
// rotating file, if one was opened.
func New(opts Options) (*log.Logger, io.Closer, error) {
	logger := log.New()

	level := log.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = log.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: %w", err)
		}
	}
	logger.SetLevel(level)

	if opts.JSON {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if opts.File == "" {
		logger.SetOutput(os.Stderr)
		return logger, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("logging: failed to create log directory: %w", err)
	}
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	writer := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: 3,
	}
	logger.SetOutput(writer)
	return logger, writer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type requestIDKey struct{}

// NewRequestID returns an identifier for correlating the log lines of one request.
func NewRequestID() string {
	return uuid.NewString()[:8]
}

// WithRequestID returns a new context with the request ID attached.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// FromContext returns logger annotated with the request ID carried by ctx.
func FromContext(ctx context.Context, logger log.FieldLogger) log.FieldLogger {
	if id := GetRequestID(ctx); id != "" {
		return logger.WithField("request_id", id)
	}
	return logger
}
