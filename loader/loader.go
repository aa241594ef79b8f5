package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/trustgate"
	"github.com/meigma/trustgate/internal/progress"
)

// DefaultMaxSize is the default limit on model size.
const DefaultMaxSize int64 = 8 << 30

// zstdSuffix marks a zstd-compressed model file.
const zstdSuffix = ".zst"

var (
	// ErrTooLarge indicates a model larger than the configured limit.
	ErrTooLarge = errors.New("model exceeds size limit")

	// ErrEmptyModel indicates a model file with no content.
	ErrEmptyModel = errors.New("model file is empty")
)

// FileLoader loads model files from the local filesystem.
type FileLoader struct {
	maxSize    int64
	onProgress progress.Callback
	logger     *slog.Logger
}

// NewFileLoader creates a FileLoader.
func NewFileLoader(opts ...Option) (*FileLoader, error) {
	l := &FileLoader{
		maxSize: DefaultMaxSize,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Load implements trustgate.ArtifactLoader.
//
// Files ending in .zst are decompressed first. The digest, size, and format
// all describe the decompressed bytes.
func (l *FileLoader) Load(ctx context.Context, path string) (*trustgate.Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat model: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open model: %s is a directory", path)
	}

	name := path
	total := info.Size()
	var src io.Reader = f
	if strings.HasSuffix(path, zstdSuffix) {
		dec, err := zstd.NewReader(f,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(uint64(l.maxSize)),
		)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		defer dec.Close()
		src = dec
		name = strings.TrimSuffix(path, zstdSuffix)
		total = -1
	}

	digester := digest.Canonical.Digester()
	pr := progress.NewReader(ctx, src, total,
		progress.WithLimit(l.maxSize),
		progress.WithCallback(l.onProgress),
	)
	data, err := io.ReadAll(io.TeeReader(pr, digester.Hash()))
	if err != nil {
		if errors.Is(err, progress.ErrLimitExceeded) || errors.Is(err, zstd.ErrDecoderSizeExceeded) {
			return nil, fmt.Errorf("%w: %s is larger than %s", ErrTooLarge, path, humanize.IBytes(uint64(l.maxSize)))
		}
		return nil, fmt.Errorf("read model: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyModel, path)
	}

	parsed, err := detect(name, data)
	if err != nil {
		return nil, err
	}

	artifact := &trustgate.Artifact{
		Path:     path,
		Digest:   digester.Digest(),
		Size:     int64(len(data)),
		Format:   parsed.format,
		Tensors:  parsed.tensors,
		Metadata: parsed.metadata,
		Data:     data,
	}
	l.logger.Debug("model loaded",
		"path", path,
		"format", artifact.Format,
		"size", humanize.IBytes(uint64(artifact.Size)),
		"digest", artifact.Digest.String(),
		"tensors", len(artifact.Tensors),
	)
	return artifact, nil
}

// Ensure FileLoader implements trustgate.ArtifactLoader.
var _ trustgate.ArtifactLoader = (*FileLoader)(nil)
