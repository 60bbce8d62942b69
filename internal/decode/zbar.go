package decode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const zbarTimeout = 10 * time.Second

// zbarimg exits with 4 when it scanned the image fine but found no symbols.
const zbarExitNoSymbols = 4

// ZbarDecoder shells out to the zbarimg CLI. It is the cheap fast path and
// handles the majority of clean barcode photos without any network call.
type ZbarDecoder struct{}

// NewZbarDecoder constructs the local decoder.
func NewZbarDecoder() *ZbarDecoder {
	return &ZbarDecoder{}
}

// Name implements Decoder.
func (d *ZbarDecoder) Name() string { return "zbar" }

// Decode runs zbarimg against the image file, writing a temporary file first
// when the image only exists in memory.
func (d *ZbarDecoder) Decode(ctx context.Context, img Image) ([]Code, error) {
	path := img.Path
	if path == "" {
		f, err := os.CreateTemp("", "warescan-*.jpg")
		if err != nil {
			return nil, fmt.Errorf("temp image: %w", err)
		}
		defer os.Remove(f.Name())
		if _, err := f.Write(img.Data); err != nil {
			f.Close()
			return nil, fmt.Errorf("write temp image: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("close temp image: %w", err)
		}
		path = f.Name()
	}

	ctx, cancel := context.WithTimeout(ctx, zbarTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "zbarimg", "-q", path).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == zbarExitNoSymbols {
			return nil, nil
		}
		return nil, fmt.Errorf("zbarimg: %w", err)
	}
	return parseZbarOutput(string(out), d.Name()), nil
}

// parseZbarOutput splits zbarimg stdout into symbology/data pairs. Each line
// has the form TYPE:DATA; lines without a separator keep the raw data with an
// UNKNOWN symbology.
func parseZbarOutput(out, source string) []Code {
	var codes []Code
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		symbology, data, found := strings.Cut(line, ":")
		if !found {
			symbology, data = "UNKNOWN", line
		}
		codes = append(codes, Code{Symbology: symbology, Data: data, Source: source})
	}
	return codes
}
