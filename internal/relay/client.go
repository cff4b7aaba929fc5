package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Canned assistant strings shown by the chat screen.
const (
	Greeting      = "您好！我是您的饮食助手。请告诉我您想吃什么，我会根据您的健康指标为您推荐适合的食谱。"
	EmptyReply    = "抱歉，我暂时无法给出建议。"
	FallbackReply = "抱歉，服务暂时不可用。请稍后重试。"
)

// HistoryWindow is how many trailing positions may carry assistant turns
// when a conversation is sent upstream.
const HistoryWindow = 5

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the relay's wire input.
type ChatRequest struct {
	Messages      []Message `json:"messages"`
	SystemPrompt  *string   `json:"systemPrompt,omitempty"`
	HealthContext *string   `json:"healthContext,omitempty"`
}

type completion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client calls a relay endpoint.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{url: url, http: httpClient}
}

// Complete sends req and returns choices[0].message.content, which may be
// empty. Non-2xx answers are errors carrying the relay's body.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("relay returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var out completion
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}

// Reply never fails: transport or relay errors become FallbackReply and an
// empty completion becomes EmptyReply. The error is returned for logging.
func (c *Client) Reply(ctx context.Context, req ChatRequest) (string, error) {
	content, err := c.Complete(ctx, req)
	if err != nil {
		return FallbackReply, err
	}
	if content == "" {
		return EmptyReply, nil
	}
	return content, nil
}

// TrimHistory keeps every user turn but only those assistant turns within
// the last window positions.
func TrimHistory(history []Message, window int) []Message {
	out := make([]Message, 0, len(history))
	for i, m := range history {
		if m.Role != "assistant" || i >= len(history)-window {
			out = append(out, m)
		}
	}
	return out
}
