// Package decode implements the barcode decode pipeline: a fast local zbar
// scan escalating to ranked vision providers until both warehouse codes
// (the GG label and the Q code) have been found.
package decode

import (
	"fmt"
	"os"
	"strings"
)

// Symbology assigned to every code extracted from a vision model reply,
// regardless of which pattern matched.
const SymbologyLabel = "GG_LABEL"

const (
	// PrimaryPrefix marks the mandatory label code on the yellow sticker.
	PrimaryPrefix = "GG"
	// SecondaryPrefix marks the numeric companion code under the barcode.
	SecondaryPrefix = "Q"
	// secondaryMinLen rejects short false positives such as a bare "Q7"
	// read off a size chart. A secondary code must be strictly longer.
	secondaryMinLen = 4
)

// Code is a single decoded symbology/data pair. Immutable once produced.
type Code struct {
	Symbology string `json:"symbology"`
	Data      string `json:"data"`
	Source    string `json:"source"`
}

// Key is the deduplication key used across decoder sources.
func (c Code) Key() string {
	return c.Symbology + ":" + c.Data
}

// TimelineEntry records one decoder invocation for diagnostics. It never
// influences control flow.
type TimelineEntry struct {
	Decoder string `json:"decoder"`
	Millis  int64  `json:"ms"`
	Count   int    `json:"count"`
}

func (t TimelineEntry) String() string {
	return fmt.Sprintf("%s: %d in %dms", t.Decoder, t.Count, t.Millis)
}

// Outcome is the result of a full pipeline run over one image.
type Outcome struct {
	Results  []Code
	Timeline []TimelineEntry
}

// Image is the pipeline input. Data holds the image bytes; Path optionally
// points at an on-disk copy so the zbar CLI can be handed a file directly.
type Image struct {
	Path string
	Data []byte
}

// Bytes returns the image bytes, reading Path when Data is not populated.
func (i Image) Bytes() ([]byte, error) {
	if len(i.Data) > 0 {
		return i.Data, nil
	}
	if i.Path == "" {
		return nil, fmt.Errorf("empty image")
	}
	data, err := os.ReadFile(i.Path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}

// LoadImage builds an Image backed by a file on disk.
func LoadImage(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	return Image{Path: path, Data: data}, nil
}

// IsPrimaryLabel reports whether data looks like a GG label code.
func IsPrimaryLabel(data string) bool {
	return strings.HasPrefix(data, PrimaryPrefix)
}

// IsSecondaryCode reports whether data looks like a real Q code. The length
// floor exists specifically to reject short false positives.
func IsSecondaryCode(data string) bool {
	return strings.HasPrefix(data, SecondaryPrefix) && len(data) > secondaryMinLen
}

// IsLabelClass reports whether a decoded code belongs to the label class
// (as opposed to a generic product barcode).
func IsLabelClass(symbology, data string) bool {
	return symbology == SymbologyLabel ||
		strings.HasPrefix(data, PrimaryPrefix) ||
		strings.HasPrefix(data, SecondaryPrefix)
}

// HasPrimaryLabel reports whether any result carries a GG label code.
func HasPrimaryLabel(codes []Code) bool {
	for _, c := range codes {
		if IsPrimaryLabel(c.Data) {
			return true
		}
	}
	return false
}

// HasSecondaryCode reports whether any result carries a usable Q code.
func HasSecondaryCode(codes []Code) bool {
	for _, c := range codes {
		if IsSecondaryCode(c.Data) {
			return true
		}
	}
	return false
}
