package objectstore

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/magiconair/properties"
)

// encodeSidecar serialises payload metadata as a properties document.
func encodeSidecar(meta map[string]string) ([]byte, error) {
	p := properties.NewProperties()
	p.DisableExpansion = true

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, _, err := p.Set(k, meta[k]); err != nil {
			return nil, fmt.Errorf("failed to set sidecar key %s: %w", k, err)
		}
	}

	var buf bytes.Buffer
	if _, err := p.Write(&buf, properties.UTF8); err != nil {
		return nil, fmt.Errorf("failed to write sidecar: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeSidecar parses a properties document into a metadata map.
func decodeSidecar(data []byte) (map[string]string, error) {
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: sidecar: %v", ErrFormat, err)
	}
	return p.Map(), nil
}
