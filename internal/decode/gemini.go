package decode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

const (
	geminiModelName = "gemini-2.0-flash"
	visionTimeout   = 15 * time.Second
)

// GeminiDecoder reads label codes with the Gemini vision model. It ranks
// first among the escalation decoders because it is faster and cheaper than
// OpenAI. Without a configured project it is a no-op.
type GeminiDecoder struct {
	projectID string
	location  string
	credsFile string

	mu    sync.Mutex
	model *genai.GenerativeModel
}

// NewGeminiDecoder constructs the Gemini decoder. An empty projectID
// disables the provider without error.
func NewGeminiDecoder(projectID, location, credsFile string) *GeminiDecoder {
	return &GeminiDecoder{projectID: projectID, location: location, credsFile: credsFile}
}

// Name implements Decoder.
func (d *GeminiDecoder) Name() string { return "gemini" }

// Decode sends the image plus the extraction prompt to Gemini and parses the
// free-text reply.
func (d *GeminiDecoder) Decode(ctx context.Context, img Image) ([]Code, error) {
	if d.projectID == "" {
		return nil, nil
	}
	model, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	data, err := img.Bytes()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, visionTimeout)
	defer cancel()

	resp, err := model.GenerateContent(ctx, genai.Text(extractionPrompt), genai.ImageData("image/jpeg", data))
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, nil
	}
	text := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])
	return ExtractLabelCodes(text, d.Name()), nil
}

// load initializes the Vertex AI client on first use so that constructing
// the pipeline never requires network access.
func (d *GeminiDecoder) load(ctx context.Context) (*genai.GenerativeModel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.model != nil {
		return d.model, nil
	}
	opts := []option.ClientOption{}
	if d.credsFile != "" {
		opts = append(opts, option.WithCredentialsFile(d.credsFile))
	}
	client, err := genai.NewClient(ctx, d.projectID, d.location, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	model := client.GenerativeModel(geminiModelName)
	model.SetTemperature(0)
	model.SetMaxOutputTokens(100)
	d.model = model
	return d.model, nil
}
