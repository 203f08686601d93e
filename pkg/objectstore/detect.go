package objectstore

import (
	"mime"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultDetector sniffs content with mimetype and falls back to the file
// name extension when the content alone is inconclusive. Media type
// parameters are dropped.
var DefaultDetector Detector = DetectorFunc(detectContentType)

func detectContentType(data []byte, filename string) string {
	detected := baseMediaType(mimetype.Detect(data).String())

	if detected == DefaultContentType || detected == "text/plain" || detected == "" {
		if ext := filepath.Ext(filename); ext != "" {
			if byExt := baseMediaType(mime.TypeByExtension(ext)); byExt != "" {
				return byExt
			}
		}
	}
	if detected == "" {
		return DefaultContentType
	}
	return detected
}

func baseMediaType(v string) string {
	if v == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return v
	}
	return mediaType
}
