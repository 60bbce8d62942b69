package decode

import (
	"regexp"
	"strings"
)

// The two label patterns the vision providers are asked to read off a box:
// the GG sticker code and the Q code printed under the barcode stripes.
// Replies are upper-cased before scanning so matching is case-insensitive.
var (
	primaryPattern   = regexp.MustCompile(`\b(GG\d{2,7})\b`)
	secondaryPattern = regexp.MustCompile(`\b(Q\d{4,10})\b`)
)

// extractionPrompt is the fixed instruction sent alongside the image to both
// vision providers.
const extractionPrompt = `Find ALL codes on this product:

1. GG code - LARGE BLACK TEXT on yellow sticker (like GG727, GG681)
2. Q code - numbers UNDER or NEAR the barcode lines (like Q2622988, Q747)

IMPORTANT:
- Q code is usually 7-10 digits starting with Q
- Look UNDER the barcode stripes
- Q code can be small text
- Check EVERY corner and label

Return ALL codes found, one per line:
GG727
Q2622988

If you find only GG, still return it.
If no codes at all, return "NONE"`

// ExtractLabelCodes scans a free-text model reply for GG and Q codes. Every
// match is emitted with the label-class symbology and tagged with the
// provider that produced the reply.
func ExtractLabelCodes(text, source string) []Code {
	text = strings.ToUpper(text)

	var out []Code
	seen := make(map[string]struct{})
	for _, pattern := range []*regexp.Regexp{primaryPattern, secondaryPattern} {
		for _, match := range pattern.FindAllString(text, -1) {
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			out = append(out, Code{Symbology: SymbologyLabel, Data: match, Source: source})
		}
	}
	return out
}
