package registry

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

const (
	adapterFile       = "adapter_model.safetensors"
	maxSafetensorsHdr = 25 << 20
)

type tensorInfo struct {
	Dtype string  `json:"dtype"`
	Shape []int64 `json:"shape"`
}

// AdapterParams sums the tensor shapes declared in the header of
// adapter_model.safetensors. Only the header is downloaded.
func (c *Client) AdapterParams(ctx context.Context, modelID string, revision string) (int64, error) {
	u := c.fileURL(modelID, revision, adapterFile)

	prefix, err := c.fetch(ctx, u, "bytes=0-7")
	if err != nil {
		return 0, fmt.Errorf("adapter header of %s: %w", modelID, err)
	}
	if len(prefix) < 8 {
		return 0, fmt.Errorf("adapter file of %s is truncated", modelID)
	}
	hdrLen := binary.LittleEndian.Uint64(prefix[:8])
	if hdrLen == 0 || hdrLen > maxSafetensorsHdr {
		return 0, fmt.Errorf("adapter header of %s has invalid length %d", modelID, hdrLen)
	}

	header, err := c.fetch(ctx, u, fmt.Sprintf("bytes=8-%d", 8+hdrLen-1))
	if err != nil {
		return 0, fmt.Errorf("adapter header of %s: %w", modelID, err)
	}
	// a server that ignores Range returns the file from the start
	if len(prefix) > 8 && len(header) >= 8 {
		header = header[8:]
	}
	if uint64(len(header)) < hdrLen {
		return 0, fmt.Errorf("adapter header of %s is truncated", modelID)
	}
	return countParams(header[:hdrLen])
}

func countParams(header []byte) (int64, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(header, &entries); err != nil {
		return 0, fmt.Errorf("failed to decode safetensors header: %w", err)
	}
	var total int64
	for name, raw := range entries {
		if name == "__metadata__" {
			continue
		}
		var t tensorInfo
		if err := json.Unmarshal(raw, &t); err != nil {
			return 0, fmt.Errorf("failed to decode tensor %s: %w", name, err)
		}
		n := int64(1)
		for _, d := range t.Shape {
			n *= d
		}
		total += n
	}
	return total, nil
}
