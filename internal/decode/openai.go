package decode

import (
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const openaiModelName = "gpt-4o-mini"

// OpenAIDecoder is the second-ranked vision decoder, consulted only when
// Gemini did not complete the GG/Q pair. Without an API key it is a no-op.
type OpenAIDecoder struct {
	client *openai.Client
}

// NewOpenAIDecoder constructs the OpenAI decoder. An empty apiKey disables
// the provider without error.
func NewOpenAIDecoder(apiKey string) *OpenAIDecoder {
	d := &OpenAIDecoder{}
	if apiKey != "" {
		d.client = openai.NewClient(apiKey)
	}
	return d
}

// Name implements Decoder.
func (d *OpenAIDecoder) Name() string { return "openai" }

// Decode sends the image as a data URL with the extraction prompt and parses
// the free-text reply.
func (d *OpenAIDecoder) Decode(ctx context.Context, img Image) ([]Code, error) {
	if d.client == nil {
		return nil, nil
	}
	data, err := img.Bytes()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, visionTimeout)
	defer cancel()

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     openaiModelName,
		MaxTokens: 50,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: extractionPrompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}
	return ExtractLabelCodes(resp.Choices[0].Message.Content, d.Name()), nil
}
