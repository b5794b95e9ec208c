package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/2beens/fittracker/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-flash-latest"
)

var ErrAPIKeyMissing = errors.New("gemini api key is missing")

// Client is a thin REST client for the Gemini generateContent endpoint
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(apiKey string, httpClient *http.Client) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyMissing
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		model:      defaultModel,
		httpClient: httpClient,
	}, nil
}

type generateContentRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Complete sends the prompt to the model and returns the raw completion
// text, whitespace-trimmed. A single attempt, no retries, the caller
// decides what a failure means.
func (c *Client) Complete(ctx context.Context, prompt string) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "geminiClient.complete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("gemini.model", c.model))

	reqJson, err := json.Marshal(generateContentRequest{
		Contents: []content{
			{Parts: []part{{Text: prompt}}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqJson))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var genResp generateContentResponse
	if err := json.Unmarshal(respBytes, &genResp); err != nil {
		return "", fmt.Errorf("unmarshal response [status %d]: %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		if genResp.Error != nil {
			return "", fmt.Errorf("gemini error [status %d]: %s", resp.StatusCode, genResp.Error.Message)
		}
		return "", fmt.Errorf("gemini error: unexpected status %d", resp.StatusCode)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini returned no candidates")
	}

	return strings.TrimSpace(genResp.Candidates[0].Content.Parts[0].Text), nil
}
