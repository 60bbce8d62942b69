package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// FileSource resolves Telegram file references to image bytes.
type FileSource struct {
	bot    *tgbotapi.BotAPI
	client *http.Client
}

// NewFileSource constructs a FileSource.
func NewFileSource(bot *tgbotapi.BotAPI) *FileSource {
	return &FileSource{
		bot:    bot,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch resolves a file ID via getFile and downloads the bytes.
func (f *FileSource) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	url, err := f.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file %s: %w", fileID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}
