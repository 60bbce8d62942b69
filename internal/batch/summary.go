package batch

import (
	"fmt"
	"strings"

	"github.com/dkarpov/warescan/internal/decode"
	"github.com/dkarpov/warescan/internal/pochtoy"
)

// summaryInput collects what the user-facing batch report needs.
type summaryInput struct {
	retried    bool
	primary    []string
	secondary  []string
	photoCount int
	submission pochtoy.Result
	timeline   []decode.TimelineEntry
}

// renderSummary builds the HTML summary notification sent after a batch run,
// including the per-decoder timeline for diagnostics.
func renderSummary(in summaryInput) string {
	hasPrimary, hasSecondary := hasPair(in.primary, in.secondary)

	var b strings.Builder
	if in.retried {
		b.WriteString("🔄 <b>Reprocessed</b>\n\n")
	}

	if hasPrimary && hasSecondary {
		b.WriteString("✅ <b>GG label found (complete pair)</b>\n")
	} else {
		b.WriteString("⚠️ <b>GG label incomplete</b>\n")
	}
	if len(in.primary) > 0 {
		b.WriteString("🏷️ GG: " + strings.Join(in.primary, ", ") + "\n")
	}
	if len(in.secondary) > 0 {
		b.WriteString("🔢 Q: " + strings.Join(in.secondary, ", ") + "\n")
	}

	b.WriteString(fmt.Sprintf("\n📸 Photos: %d", in.photoCount))

	if in.submission.Success {
		b.WriteString("\n\n✅ Sent to Pochtoy")
	} else {
		errText := in.submission.Error
		if errText == "" {
			errText = "unknown"
		}
		b.WriteString("\n\n❌ Pochtoy error: " + errText)
	}

	if len(in.timeline) > 0 {
		entries := make([]string, 0, len(in.timeline))
		for _, t := range in.timeline {
			entries = append(entries, t.String())
		}
		b.WriteString("\n\n<code>" + strings.Join(entries, " | ") + "</code>")
	}
	return b.String()
}

// renderNoLabel builds the actionable failure notification sent when a batch
// produced no usable label code.
func renderNoLabel() string {
	return "❌ <b>No GG label found!</b>\n\nCannot create a card without a GG code."
}
