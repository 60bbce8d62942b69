package batch

import (
	"strings"

	"github.com/dkarpov/warescan/internal/decode"
)

// Classify splits aggregated decode results into the three persisted sets:
// GG label codes, Q codes and generic barcodes. Anything label-class by
// symbology or prefix is a label code; a Q prefix routes it into the
// secondary set. Each set is deduplicated with first appearance preserved.
func Classify(results []decode.Code) (primary, secondary, barcodes []string) {
	seen := make(map[string]struct{})
	add := func(set *[]string, data string) {
		if _, ok := seen[data]; ok {
			return
		}
		seen[data] = struct{}{}
		*set = append(*set, data)
	}

	for _, r := range results {
		switch {
		case !decode.IsLabelClass(r.Symbology, r.Data):
			add(&barcodes, r.Data)
		case strings.HasPrefix(r.Data, decode.SecondaryPrefix):
			add(&secondary, r.Data)
		default:
			add(&primary, r.Data)
		}
	}
	return primary, secondary, barcodes
}

// hasPair re-derives the readiness predicates from the persisted label sets.
func hasPair(primary, secondary []string) (hasPrimary, hasSecondary bool) {
	for _, code := range primary {
		if decode.IsPrimaryLabel(code) {
			hasPrimary = true
			break
		}
	}
	for _, code := range secondary {
		if decode.IsSecondaryCode(code) {
			hasSecondary = true
			break
		}
	}
	return hasPrimary, hasSecondary
}
