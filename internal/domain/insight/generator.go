package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vhealth/integration/internal/platform/apperr"
)

// Generator turns a primed prompt into the text shown to the user.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// HTTPGenerator posts {"prompt": ...} to {baseURL}/generate and returns the
// response body as is.
type HTTPGenerator struct {
	baseURL string
	client  *http.Client
}

func NewHTTPGenerator(baseURL string, client *http.Client) *HTTPGenerator {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPGenerator{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return "", err
	}
	out, err := postJSON(ctx, g.client, g.baseURL+"/generate", "generate", body)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// postJSON sends body and returns the response body of a 2xx reply. Any
// other outcome is a RemoteCallError.
func postJSON(ctx context.Context, client *http.Client, url, resource string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", resource, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &apperr.RemoteCallError{Method: http.MethodPost, Resource: resource, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.RemoteCallError{Method: http.MethodPost, Resource: resource, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperr.RemoteCallError{
			Method:      http.MethodPost,
			Resource:    resource,
			StatusCode:  resp.StatusCode,
			Diagnostics: truncate(string(data), 512),
		}
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicGenerator generates insights with the Anthropic Messages API.
type AnthropicGenerator struct {
	messages  messageCreator
	model     string
	maxTokens int64
}

func NewAnthropicGenerator(apiKey, model string) *AnthropicGenerator {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicGenerator{messages: &client.Messages, model: model, maxTokens: 1024}
}

func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", &apperr.RemoteCallError{Method: http.MethodPost, Resource: "messages", Err: err}
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &apperr.DeserializationError{Resource: "messages", Err: errors.New("response has no text content")}
	}
	return sb.String(), nil
}
