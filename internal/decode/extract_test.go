package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractLabelCodes(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "both codes one per line",
			text: "GG727\nQ2622988",
			want: []string{"GG727", "Q2622988"},
		},
		{
			name: "case insensitive",
			text: "found gg727 and q2622988 on the box",
			want: []string{"GG727", "Q2622988"},
		},
		{
			name: "duplicates collapse",
			text: "GG727 GG727 Q74747 Q74747",
			want: []string{"GG727", "Q74747"},
		},
		{
			name: "primary needs at least two digits",
			text: "GG7",
			want: nil,
		},
		{
			name: "primary at most seven digits",
			text: "GG12345678",
			want: nil,
		},
		{
			name: "secondary needs at least four digits",
			text: "Q747",
			want: nil,
		},
		{
			name: "none reply",
			text: "NONE",
			want: nil,
		},
		{
			name: "codes embedded in prose",
			text: "The sticker reads GG681, the barcode shows Q2622988.",
			want: []string{"GG681", "Q2622988"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes := ExtractLabelCodes(tt.text, "gemini")
			var got []string
			for _, c := range codes {
				assert.Equal(t, SymbologyLabel, c.Symbology)
				assert.Equal(t, "gemini", c.Source)
				got = append(got, c.Data)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
