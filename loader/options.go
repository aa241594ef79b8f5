package loader

import (
	"errors"
	"log/slog"

	"github.com/meigma/trustgate/internal/progress"
)

// Option configures a FileLoader.
type Option func(*FileLoader) error

// WithMaxSize limits the number of model bytes read, after decompression.
func WithMaxSize(n int64) Option {
	return func(l *FileLoader) error {
		if n <= 0 {
			return errors.New("loader: max size must be positive")
		}
		l.maxSize = n
		return nil
	}
}

// WithProgress reports read progress while the model is loaded.
func WithProgress(cb func(read, total int64)) Option {
	return func(l *FileLoader) error {
		l.onProgress = progress.Callback(cb)
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *FileLoader) error {
		if logger != nil {
			l.logger = logger
		}
		return nil
	}
}
