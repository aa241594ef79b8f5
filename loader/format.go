package loader

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/meigma/trustgate"
)

// Supported model formats.
const (
	FormatSafetensors = "safetensors"
	FormatPyTorchZip  = "pytorch-zip"
	FormatGGUF        = "gguf"
	FormatONNX        = "onnx"
)

var (
	// ErrUnsupportedFormat indicates a model whose format is not recognized.
	ErrUnsupportedFormat = errors.New("unsupported model format")

	// ErrMalformedModel indicates a model whose header cannot be parsed.
	ErrMalformedModel = errors.New("malformed model")
)

var (
	zipMagic  = []byte("PK\x03\x04")
	ggufMagic = []byte("GGUF")
)

type parsedModel struct {
	format   string
	tensors  []trustgate.TensorInfo
	metadata map[string]string
}

// detect identifies the format of data, using name for extension hints.
// Magic numbers take precedence over the extension.
func detect(name string, data []byte) (parsedModel, error) {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return parsedModel{format: FormatPyTorchZip}, nil
	case bytes.HasPrefix(data, ggufMagic):
		return parsedModel{format: FormatGGUF}, nil
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".safetensors":
		tensors, metadata, err := parseSafetensors(data)
		if err != nil {
			return parsedModel{}, err
		}
		return parsedModel{format: FormatSafetensors, tensors: tensors, metadata: metadata}, nil
	case ".onnx":
		return parsedModel{format: FormatONNX}, nil
	default:
		return parsedModel{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(name))
	}
}
