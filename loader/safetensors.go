package loader

import (
	"cmp"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/meigma/trustgate"
)

const (
	safetensorsLenSize   = 8
	safetensorsMaxHeader = 100 << 20
	safetensorsMetaKey   = "__metadata__"
)

// dtypeSizes maps safetensors dtypes to their element size in bytes.
var dtypeSizes = map[string]int64{
	"BOOL":    1,
	"U8":      1,
	"I8":      1,
	"F8_E5M2": 1,
	"F8_E4M3": 1,
	"I16":     2,
	"U16":     2,
	"F16":     2,
	"BF16":    2,
	"I32":     4,
	"U32":     4,
	"F32":     4,
	"I64":     8,
	"U64":     8,
	"F64":     8,
}

type safetensorsEntry struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// parseSafetensors reads the header of a safetensors file and checks every
// tensor against the data section. Tensors are returned in offset order.
func parseSafetensors(data []byte) ([]trustgate.TensorInfo, map[string]string, error) {
	if len(data) < safetensorsLenSize {
		return nil, nil, fmt.Errorf("%w: safetensors file shorter than header length", ErrMalformedModel)
	}

	headerLen := binary.LittleEndian.Uint64(data[:safetensorsLenSize])
	if headerLen == 0 || headerLen > safetensorsMaxHeader || headerLen > uint64(len(data)-safetensorsLenSize) {
		return nil, nil, fmt.Errorf("%w: invalid safetensors header length %d", ErrMalformedModel, headerLen)
	}
	header := data[safetensorsLenSize : safetensorsLenSize+headerLen]
	body := int64(len(data)) - int64(safetensorsLenSize) - int64(headerLen)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(header, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: safetensors header: %w", ErrMalformedModel, err)
	}

	var metadata map[string]string
	tensors := make([]trustgate.TensorInfo, 0, len(raw))
	for name, msg := range raw {
		if name == safetensorsMetaKey {
			if err := json.Unmarshal(msg, &metadata); err != nil {
				return nil, nil, fmt.Errorf("%w: safetensors metadata: %w", ErrMalformedModel, err)
			}
			continue
		}

		var entry safetensorsEntry
		if err := json.Unmarshal(msg, &entry); err != nil {
			return nil, nil, fmt.Errorf("%w: tensor %q: %w", ErrMalformedModel, name, err)
		}
		if err := entry.validate(body); err != nil {
			return nil, nil, fmt.Errorf("%w: tensor %q: %w", ErrMalformedModel, name, err)
		}
		tensors = append(tensors, trustgate.TensorInfo{
			Name:    name,
			DType:   entry.DType,
			Shape:   entry.Shape,
			Offsets: entry.DataOffsets,
		})
	}

	slices.SortFunc(tensors, func(a, b trustgate.TensorInfo) int {
		return cmp.Or(cmp.Compare(a.Offsets[0], b.Offsets[0]), cmp.Compare(a.Name, b.Name))
	})
	return tensors, metadata, nil
}

func (e safetensorsEntry) validate(body int64) error {
	size, ok := dtypeSizes[e.DType]
	if !ok {
		return fmt.Errorf("unknown dtype %q", e.DType)
	}

	begin, end := e.DataOffsets[0], e.DataOffsets[1]
	if begin < 0 || end < begin || end > body {
		return fmt.Errorf("data offsets [%d, %d] outside data section of %d bytes", begin, end, body)
	}

	elements := int64(1)
	for _, dim := range e.Shape {
		if dim < 0 {
			return fmt.Errorf("negative dimension %d", dim)
		}
		if dim != 0 && elements > math.MaxInt64/dim {
			return fmt.Errorf("shape %v overflows", e.Shape)
		}
		elements *= dim
	}
	if elements > math.MaxInt64/size {
		return fmt.Errorf("shape %v overflows", e.Shape)
	}
	if elements*size != end-begin {
		return fmt.Errorf("shape %v of %s needs %d bytes, offsets span %d", e.Shape, e.DType, elements*size, end-begin)
	}
	return nil
}
