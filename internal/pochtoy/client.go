// Package pochtoy wraps the downstream inventory API used to register and
// remove tracked shipments.
package pochtoy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	submitTimeout = 60 * time.Second
	deleteTimeout = 30 * time.Second
)

// Shipment carries everything the store endpoint needs: every batch photo
// plus the deduplicated union of label codes and barcodes.
type Shipment struct {
	CorrelationID string
	Images        [][]byte
	Trackings     []string
}

// Result is the structured outcome of a submit or delete call. A 400-class
// response is a business failure with the message extracted, not a transport
// error.
type Result struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
	ImagesSent    int    `json:"images_sent,omitempty"`
	TrackingsSent int    `json:"trackings_sent,omitempty"`
}

// Client talks to the Pochtoy API.
type Client struct {
	apiURL     string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// New constructs a Client. An empty apiURL makes every call fail with a
// configuration error result rather than panicking.
func New(apiURL, token string, log zerolog.Logger) *Client {
	return &Client{
		apiURL:     apiURL,
		token:      token,
		httpClient: &http.Client{},
		log:        log,
	}
}

type imagePayload struct {
	Base64   string `json:"base64"`
	FileName string `json:"file_name"`
}

// Submit PUTs the batch images and trackings to the store endpoint.
func (c *Client) Submit(ctx context.Context, sh Shipment) Result {
	if c.apiURL == "" {
		return Result{Success: false, Error: "pochtoy api not configured"}
	}

	images := make([]imagePayload, 0, len(sh.Images))
	for idx, data := range sh.Images {
		images = append(images, imagePayload{
			Base64:   base64.StdEncoding.EncodeToString(data),
			FileName: fmt.Sprintf("%s_%d.jpg", sh.CorrelationID, idx),
		})
	}
	c.log.Info().
		Int("images", len(images)).
		Int("trackings", len(sh.Trackings)).
		Msg("sending batch to pochtoy")

	body := map[string]any{
		"images":    images,
		"trackings": sh.Trackings,
	}
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPut, c.apiURL, body)
	if err != nil {
		c.log.Error().Err(err).Msg("pochtoy submit failed")
		return Result{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	c.log.Info().Int("status", resp.StatusCode).Msg("pochtoy response")

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&reply)

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		msg := reply.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return Result{Success: false, Error: msg}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if reply.Status == "ok" {
			return Result{
				Success:       true,
				Message:       "Product added successfully",
				ImagesSent:    len(images),
				TrackingsSent: len(sh.Trackings),
			}
		}
		msg := reply.Message
		if msg == "" {
			msg = "Pochtoy error"
		}
		return Result{Success: false, Error: msg}
	default:
		return Result{Success: false, Error: fmt.Sprintf("HTTP error: %d", resp.StatusCode)}
	}
}

// Delete removes previously submitted trackings. Used for explicit user
// deletion and as the pre-retry compensation.
func (c *Client) Delete(ctx context.Context, trackings []string) Result {
	if c.apiURL == "" {
		return Result{Success: false, Error: "pochtoy api not configured"}
	}

	deleteURL := strings.Replace(c.apiURL, "/store", "/delete", 1)
	body := map[string]any{"trackings": dedupe(trackings)}

	ctx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, deleteURL, body)
	if err != nil {
		c.log.Error().Err(err).Msg("pochtoy delete failed")
		return Result{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Success: true, Message: "Deleted from Pochtoy"}
	}
	return Result{Success: false, Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}
}

func (c *Client) do(ctx context.Context, method, url string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.httpClient.Do(req)
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
