package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider implements Provider against the Gemini REST API.
type GeminiProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		apiKey:  apiKey,
		model:   "gemini-1.5-flash",
		baseURL: defaultGeminiBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithModel switches the provider to a specific Gemini model. Empty input
// keeps the default.
func (p *GeminiProvider) WithModel(model string) *GeminiProvider {
	if model != "" {
		p.model = model
	}
	return p
}

func (p *GeminiProvider) Name() string {
	return "gemini/" + p.model
}

// Generate sends the prompt and returns the raw model text.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	requestBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     0.1,
			"maxOutputTokens": 1024,
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", classifyGeminiError(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", classifyGeminiHTTPError(p.Name(), resp.StatusCode, string(body))
	}

	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", &ProviderError{
			Code:     ErrBadResponse,
			Message:  "decode Gemini response",
			Provider: p.Name(),
			Cause:    err,
		}
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", &ProviderError{
			Code:     ErrBadResponse,
			Message:  "no response from Gemini",
			Provider: p.Name(),
		}
	}

	return geminiResp.Candidates[0].Content.Parts[0].Text, nil
}

// classifyGeminiError converts network errors to ProviderErrors.
func classifyGeminiError(provider string, err error) *ProviderError {
	return &ProviderError{
		Code:      ErrProviderUnavailable,
		Message:   "Gemini API request failed",
		Provider:  provider,
		Retryable: true,
		Cause:     err,
	}
}

// classifyGeminiHTTPError converts HTTP errors to ProviderErrors.
func classifyGeminiHTTPError(provider string, statusCode int, body string) *ProviderError {
	if statusCode == http.StatusTooManyRequests {
		return &ProviderError{
			Code:      ErrProviderRateLimited,
			Message:   "Gemini API rate limited",
			Provider:  provider,
			Retryable: true,
		}
	}
	return &ProviderError{
		Code:      ErrProviderUnavailable,
		Message:   fmt.Sprintf("Gemini API error (HTTP %d): %s", statusCode, body),
		Provider:  provider,
		Retryable: statusCode >= 500,
	}
}
