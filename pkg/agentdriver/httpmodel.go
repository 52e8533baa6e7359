package agentdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPModel is the default Model backend: a plain net/http client against
// an OpenAI-compatible chat completions endpoint. See DESIGN.md for why
// this pipeline talks to its model over a plain HTTP chat API rather than
// a generated gRPC client or third-party LLM SDK.
type HTTPModel struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	modelName  string

	calls int
	cost  float64
	costPerCall float64
}

// NewHTTPModel returns a Model that posts chat completions to baseURL.
func NewHTTPModel(baseURL, apiKey, modelName string, costPerCall float64) *HTTPModel {
	return &HTTPModel{
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		baseURL:     baseURL,
		apiKey:      apiKey,
		modelName:   modelName,
		costPerCall: costPerCall,
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Query implements Model.
func (m *HTTPModel) Query(ctx context.Context, messages []Message) (Completion, error) {
	body, err := json.Marshal(chatRequest{Model: m.modelName, Messages: messages})
	if err != nil {
		return Completion{}, fmt.Errorf("agentdriver: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("agentdriver: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("agentdriver: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Completion{}, fmt.Errorf("agentdriver: unexpected status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Completion{}, fmt.Errorf("agentdriver: decoding response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Completion{}, fmt.Errorf("agentdriver: empty response")
	}

	m.calls++
	m.cost += m.costPerCall

	return Completion{Content: parsed.Choices[0].Message.Content}, nil
}

// TemplateVars implements Model.
func (m *HTTPModel) TemplateVars() map[string]string {
	return map[string]string{"model": m.modelName}
}

// Calls implements Model.
func (m *HTTPModel) Calls() int { return m.calls }

// Cost implements Model.
func (m *HTTPModel) Cost() float64 { return m.cost }
