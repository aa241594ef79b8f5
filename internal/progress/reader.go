// Package progress counts the bytes read from a model file.
package progress

import (
	"context"
	"errors"
	"io"
)

// ErrLimitExceeded is returned once more than the configured limit has been read.
var ErrLimitExceeded = errors.New("read limit exceeded")

// Callback receives the cumulative bytes read and the expected total (-1 if unknown).
type Callback func(read, total int64)

// Reader wraps an io.Reader, counting bytes, enforcing an optional limit,
// and stopping once its context is done.
type Reader struct {
	ctx      context.Context
	reader   io.Reader
	callback Callback
	total    int64
	limit    int64
	read     int64
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithCallback reports progress after every read that returns data.
func WithCallback(cb Callback) ReaderOption {
	return func(r *Reader) {
		r.callback = cb
	}
}

// WithLimit fails reads once more than limit bytes have been read.
// A limit of zero or less disables the check.
func WithLimit(limit int64) ReaderOption {
	return func(r *Reader) {
		r.limit = limit
	}
}

// NewReader creates a counting reader. total is the expected size, or -1.
func NewReader(ctx context.Context, r io.Reader, total int64, opts ...ReaderOption) *Reader {
	pr := &Reader{ctx: ctx, reader: r, total: total}
	for _, opt := range opts {
		opt(pr)
	}
	return pr
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}

	n, err := r.reader.Read(p)
	if n > 0 {
		r.read += int64(n)
		if r.limit > 0 && r.read > r.limit {
			return n, ErrLimitExceeded
		}
		if r.callback != nil {
			r.callback(r.read, r.total)
		}
	}
	return n, err
}

// N returns the number of bytes read so far.
func (r *Reader) N() int64 {
	return r.read
}
