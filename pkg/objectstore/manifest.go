package objectstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// manifestTypeOther is the manifest type of every payload that is not the Source.
const manifestTypeOther = "other"

// manifestItem is one entry in the object manifest.
type manifestItem struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// manifestDocument is the JSON form of "oid/object-manifest".
type manifestDocument struct {
	Items []manifestItem `json:"items,omitempty"`
}

// encodeManifest renders the manifest for the given PIDs in order.
// PIDs ending in the sidecar suffix never appear.
func encodeManifest(pids []string, sourceID string) ([]byte, error) {
	doc := manifestDocument{Items: []manifestItem{}}
	for _, pid := range pids {
		if strings.HasSuffix(pid, SidecarSuffix) {
			continue
		}
		item := manifestItem{Name: pid, Type: manifestTypeOther}
		if pid == sourceID {
			item.Type = string(PayloadTypeSource)
		}
		doc.Items = append(doc.Items, item)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// decodeManifest parses a manifest document. An empty document or a missing
// items array yields no payloads.
func decodeManifest(data []byte) ([]manifestItem, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var doc manifestDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrFormat, err)
	}
	items := make([]manifestItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		if item.Name == "" {
			return nil, fmt.Errorf("%w: manifest item without name", ErrFormat)
		}
		items = append(items, item)
	}
	return items, nil
}
