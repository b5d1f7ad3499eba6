// Package llm turns rule-list reports into plain-language summaries
// through the DeepSeek chat API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Summarizer struct {
	apiKey    string
	model     string
	client    *http.Client
	baseURL   string
	maxTokens int
}

// Summary is the structured answer extracted from the model response.
type Summary struct {
	Model   string   `json:"model"`
	Text    string   `json:"text"`
	Caveats []string `json:"caveats"`
}

func NewSummarizer(apiKey, model string, timeout time.Duration, maxTokens int) *Summarizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if model == "" {
		model = "deepseek-chat"
	}
	return &Summarizer{
		apiKey:    apiKey,
		model:     model,
		client:    &http.Client{Timeout: timeout},
		baseURL:   "https://api.deepseek.com/chat/completions",
		maxTokens: maxTokens,
	}
}

// Summarize asks the API to restate a rule-list report for a non-technical
// reader.
func (s *Summarizer) Summarize(ctx context.Context, modelName, report string, accuracy float64) (*Summary, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("summarizer not configured")
	}
	if s.apiKey == "" {
		return nil, errors.New("api key is required")
	}

	prompt := fmt.Sprintf(`You are explaining an interpretable classifier to a non-technical reader.

The classifier is an ordered list of IF/THEN rules. Each instance is
decided by the first rule it matches; the final DEFAULT rule catches
everything else. Training accuracy: %.1f%%.

Rule list:
%s

Write a short summary (under 120 words) of what drives the predictions,
and list the main caveats a reader should keep in mind.

Return JSON only:
{
  "text": "...",
  "caveats": ["...", "..."]
}
`, accuracy*100, report)

	requestBody := deepSeekRequest{
		Model: s.model,
		Messages: []deepSeekMessage{{
			Role:    "user",
			Content: prompt,
		}},
		MaxTokens:   s.maxTokens,
		Temperature: 0.2,
	}
	payload, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr deepSeekErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("deepseek api error: %s", apiErr.Error.Message)
		}
		return nil, fmt.Errorf("deepseek api returned status %d", resp.StatusCode)
	}

	var apiResp deepSeekResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, err
	}
	if len(apiResp.Choices) == 0 {
		return nil, errors.New("deepseek api returned empty response")
	}

	summary, err := parseSummary(apiResp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	summary.Model = modelName
	return summary, nil
}

type deepSeekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepSeekRequest struct {
	Model       string            `json:"model"`
	Messages    []deepSeekMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

type deepSeekResponse struct {
	Choices []struct {
		Message deepSeekMessage `json:"message"`
	} `json:"choices"`
}

type deepSeekErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func parseSummary(content string) (*Summary, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var summary Summary
	if err := json.Unmarshal([]byte(trimmed), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
