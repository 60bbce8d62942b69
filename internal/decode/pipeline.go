package decode

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkarpov/warescan/internal/config"
)

// Decoder is the single capability all three decoding strategies share. A
// failed decode is reported as an error; the pipeline downgrades it to zero
// results and keeps going.
type Decoder interface {
	Name() string
	Decode(ctx context.Context, img Image) ([]Code, error)
}

// Pipeline orchestrates decoders under the escalation policy: quick decoders
// always run, ranked decoders run in priority order only until both the GG
// label and the Q code have been found.
type Pipeline struct {
	quick  []Decoder
	ranked []Decoder
	log    zerolog.Logger
}

// New builds a pipeline from explicit decoder lists.
func New(log zerolog.Logger, quick, ranked []Decoder) *Pipeline {
	return &Pipeline{quick: quick, ranked: ranked, log: log}
}

// FromConfig wires the three built-in strategies: zbar on the fast path,
// Gemini then OpenAI on the escalation path.
func FromConfig(cfg *config.Config, log zerolog.Logger) *Pipeline {
	return New(log,
		[]Decoder{NewZbarDecoder()},
		[]Decoder{
			NewGeminiDecoder(cfg.GoogleProjectID, cfg.GoogleLocation, cfg.GoogleCredentialsFile),
			NewOpenAIDecoder(cfg.OpenAIAPIKey),
		},
	)
}

// Process runs the escalation over one image. Results are deduplicated by
// symbology+data across all sources, first occurrence wins; the timeline
// lists each decoder actually invoked in invocation order.
func (p *Pipeline) Process(ctx context.Context, img Image) Outcome {
	var out Outcome
	seen := make(map[string]struct{})

	for _, d := range p.quick {
		p.run(ctx, d, img, seen, &out)
	}

	if HasPrimaryLabel(out.Results) && HasSecondaryCode(out.Results) {
		return out
	}

	p.log.Info().
		Bool("has_gg", HasPrimaryLabel(out.Results)).
		Bool("has_q", HasSecondaryCode(out.Results)).
		Msg("label pair incomplete, escalating to vision decoders")

	for _, d := range p.ranked {
		p.run(ctx, d, img, seen, &out)
		if HasPrimaryLabel(out.Results) && HasSecondaryCode(out.Results) {
			break
		}
	}
	return out
}

// run invokes one decoder, folding its output into the running result set.
// Decoder errors are logged and treated as zero results, never fatal.
func (p *Pipeline) run(ctx context.Context, d Decoder, img Image, seen map[string]struct{}, out *Outcome) {
	start := time.Now()
	decoded, err := d.Decode(ctx, img)
	if err != nil {
		p.log.Error().Err(err).Str("decoder", d.Name()).Msg("decoder failed")
		decoded = nil
	}
	added := 0
	for _, code := range decoded {
		key := code.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out.Results = append(out.Results, code)
		added++
	}
	out.Timeline = append(out.Timeline, TimelineEntry{
		Decoder: d.Name(),
		Millis:  time.Since(start).Milliseconds(),
		Count:   added,
	})
}
