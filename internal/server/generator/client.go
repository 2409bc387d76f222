// Package generator calls the external image-generation provider.
package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// maxImageBytes caps how much of a provider response is read.
const maxImageBytes = 20 << 20

var ErrEmptyImage = errors.New("provider returned no image")

type Image struct {
	Data        []byte
	ContentType string
}

// Client posts prompts to an HTTP image provider. The provider may answer
// with raw image bytes or with JSON carrying a base64 image.
type Client struct {
	url    string
	apiKey string
	client *http.Client
}

func NewClient(url, apiKey string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Image       string `json:"image"`
	ContentType string `json:"content_type"`
	Error       string `json:"error"`
}

func (c *Client) Generate(ctx context.Context, prompt string) (*Image, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "image/") {
		if len(respBody) == 0 {
			return nil, ErrEmptyImage
		}
		return &Image{Data: respBody, ContentType: mediaType}, nil
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if gr.Error != "" {
		return nil, fmt.Errorf("provider error: %s", gr.Error)
	}
	data, err := base64.StdEncoding.DecodeString(gr.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	ct := gr.ContentType
	if ct == "" {
		ct = "image/png"
	}
	return &Image{Data: data, ContentType: ct}, nil
}
