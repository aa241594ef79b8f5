package loader

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/trustgate"
)

// buildSafetensors encodes header as a safetensors file followed by bodyLen zero bytes.
func buildSafetensors(t *testing.T, header map[string]any, bodyLen int) []byte {
	t.Helper()
	h, err := json.Marshal(header)
	require.NoError(t, err)

	out := make([]byte, 8, 8+len(h)+bodyLen)
	binary.LittleEndian.PutUint64(out, uint64(len(h)))
	out = append(out, h...)
	return append(out, make([]byte, bodyLen)...)
}

func validSafetensors(t *testing.T) []byte {
	t.Helper()
	return buildSafetensors(t, map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
		"fc.weight":    map[string]any{"dtype": "F32", "shape": []int{2, 3}, "data_offsets": []int{8, 32}},
		"fc.bias":      map[string]any{"dtype": "F16", "shape": []int{4}, "data_offsets": []int{0, 8}},
	}, 32)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func newTestLoader(t *testing.T, opts ...Option) *FileLoader {
	t.Helper()
	l, err := NewFileLoader(opts...)
	require.NoError(t, err)
	return l
}

func TestLoad_Safetensors(t *testing.T) {
	t.Parallel()

	data := validSafetensors(t)
	path := writeFile(t, "model.safetensors", data)

	artifact, err := newTestLoader(t).Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, artifact.Path)
	assert.Equal(t, FormatSafetensors, artifact.Format)
	assert.Equal(t, digest.FromBytes(data), artifact.Digest)
	assert.Equal(t, int64(len(data)), artifact.Size)
	assert.Equal(t, data, artifact.Data)
	assert.Equal(t, map[string]string{"format": "pt"}, artifact.Metadata)

	want := []trustgate.TensorInfo{
		{Name: "fc.bias", DType: "F16", Shape: []int64{4}, Offsets: [2]int64{0, 8}},
		{Name: "fc.weight", DType: "F32", Shape: []int64{2, 3}, Offsets: [2]int64{8, 32}},
	}
	if diff := cmp.Diff(want, artifact.Tensors); diff != "" {
		t.Errorf("tensors mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Zstd(t *testing.T) {
	t.Parallel()

	data := validSafetensors(t)
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(data, nil)
	require.NoError(t, enc.Close())

	path := writeFile(t, "model.safetensors.zst", compressed)
	artifact, err := newTestLoader(t).Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, FormatSafetensors, artifact.Format)
	assert.Equal(t, digest.FromBytes(data), artifact.Digest)
	assert.Equal(t, data, artifact.Data)
	assert.Len(t, artifact.Tensors, 2)
}

func TestLoad_FormatDetection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		file       string
		data       []byte
		wantFormat string
		wantErr    error
	}{
		{name: "pytorch zip", file: "model.pt", data: []byte("PK\x03\x04rest-of-archive"), wantFormat: FormatPyTorchZip},
		{name: "pytorch zip with bin extension", file: "pytorch_model.bin", data: []byte("PK\x03\x04archive"), wantFormat: FormatPyTorchZip},
		{name: "gguf", file: "llama.gguf", data: []byte("GGUF\x03\x00\x00\x00"), wantFormat: FormatGGUF},
		{name: "onnx", file: "resnet.onnx", data: []byte{0x08, 0x07, 0x12}, wantFormat: FormatONNX},
		{name: "uppercase extension", file: "RESNET.ONNX", data: []byte{0x08}, wantFormat: FormatONNX},
		{name: "pickle", file: "model.pkl", data: []byte{0x80, 0x04, 0x95}, wantErr: ErrUnsupportedFormat},
		{name: "no extension", file: "weights", data: []byte("plain"), wantErr: ErrUnsupportedFormat},
	}

	l := newTestLoader(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			artifact, err := l.Load(context.Background(), writeFile(t, tt.file, tt.data))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, artifact)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFormat, artifact.Format)
			assert.Empty(t, artifact.Tensors)
		})
	}
}

func TestLoad_MalformedSafetensors(t *testing.T) {
	t.Parallel()

	tooLongHeader := make([]byte, 16)
	binary.LittleEndian.PutUint64(tooLongHeader, 1<<40)

	badJSON := make([]byte, 8, 12)
	binary.LittleEndian.PutUint64(badJSON, 4)
	badJSON = append(badJSON, []byte("{not")...)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "truncated length", data: []byte{1, 2, 3}},
		{name: "header past end", data: tooLongHeader},
		{name: "header not json", data: badJSON},
		{name: "unknown dtype", data: buildSafetensors(t, map[string]any{
			"w": map[string]any{"dtype": "F128", "shape": []int{1}, "data_offsets": []int{0, 16}},
		}, 16)},
		{name: "offsets beyond data", data: buildSafetensors(t, map[string]any{
			"w": map[string]any{"dtype": "F32", "shape": []int{4}, "data_offsets": []int{0, 16}},
		}, 8)},
		{name: "reversed offsets", data: buildSafetensors(t, map[string]any{
			"w": map[string]any{"dtype": "U8", "shape": []int{0}, "data_offsets": []int{4, 0}},
		}, 8)},
		{name: "shape does not match offsets", data: buildSafetensors(t, map[string]any{
			"w": map[string]any{"dtype": "F32", "shape": []int{3}, "data_offsets": []int{0, 16}},
		}, 16)},
		{name: "negative dimension", data: buildSafetensors(t, map[string]any{
			"w": map[string]any{"dtype": "F32", "shape": []int{-1}, "data_offsets": []int{0, 4}},
		}, 4)},
		{name: "metadata not strings", data: buildSafetensors(t, map[string]any{
			"__metadata__": map[string]any{"epochs": 3},
		}, 0)},
	}

	l := newTestLoader(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := l.Load(context.Background(), writeFile(t, "model.safetensors", tt.data))
			require.ErrorIs(t, err, ErrMalformedModel)
		})
	}
}

func TestLoad_ScalarTensor(t *testing.T) {
	t.Parallel()

	data := buildSafetensors(t, map[string]any{
		"step": map[string]any{"dtype": "I64", "shape": []int{}, "data_offsets": []int{0, 8}},
	}, 8)

	artifact, err := newTestLoader(t).Load(context.Background(), writeFile(t, "scalar.safetensors", data))
	require.NoError(t, err)
	require.Len(t, artifact.Tensors, 1)
	assert.Empty(t, artifact.Tensors[0].Shape)
	assert.Nil(t, artifact.Metadata)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := newTestLoader(t).Load(context.Background(), filepath.Join(t.TempDir(), "absent.safetensors"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("directory", func(t *testing.T) {
		t.Parallel()
		_, err := newTestLoader(t).Load(context.Background(), t.TempDir())
		require.Error(t, err)
	})

	t.Run("empty file", func(t *testing.T) {
		t.Parallel()
		_, err := newTestLoader(t).Load(context.Background(), writeFile(t, "empty.onnx", nil))
		require.ErrorIs(t, err, ErrEmptyModel)
	})

	t.Run("too large", func(t *testing.T) {
		t.Parallel()
		l := newTestLoader(t, WithMaxSize(16))
		_, err := l.Load(context.Background(), writeFile(t, "big.onnx", make([]byte, 17)))
		require.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("exactly at limit", func(t *testing.T) {
		t.Parallel()
		l := newTestLoader(t, WithMaxSize(16))
		_, err := l.Load(context.Background(), writeFile(t, "fits.onnx", make([]byte, 16)))
		require.NoError(t, err)
	})

	t.Run("corrupt zstd", func(t *testing.T) {
		t.Parallel()
		_, err := newTestLoader(t).Load(context.Background(), writeFile(t, "model.onnx.zst", []byte("not zstd at all")))
		require.Error(t, err)
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newTestLoader(t).Load(ctx, writeFile(t, "model.onnx", []byte{0x08}))
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoad_Progress(t *testing.T) {
	t.Parallel()

	data := make([]byte, 4096)
	var last, total int64
	l := newTestLoader(t, WithProgress(func(read, tot int64) {
		last, total = read, tot
	}))

	_, err := l.Load(context.Background(), writeFile(t, "model.onnx", data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), last)
	assert.Equal(t, int64(len(data)), total)
}

func TestNewFileLoader_InvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := NewFileLoader(WithMaxSize(0))
	require.Error(t, err)
}
