// Package relay forwards diet questions to an OpenAI-compatible chat
// completion API, prefixing a fixed nutrition system prompt. It keeps no
// state between requests.
package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Path is where the relay is mounted.
const Path = "/relay/recipe-chat"

const allowHeaders = "authorization, x-client-info, apikey, content-type"

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// SystemPrompt replaces BasePrompt when non-empty.
	SystemPrompt string
}

// Observer receives one call per upstream attempt.
type Observer interface {
	ObserveUpstream(status int, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveUpstream(int, time.Duration, error) {}

type Relay struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
	obs    Observer
}

func New(cfg Config, logger zerolog.Logger, obs Observer) *Relay {
	if obs == nil {
		obs = nopObserver{}
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = BasePrompt
	}
	return &Relay{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "relay").Logger(),
		obs:    obs,
	}
}

// WithHTTPClient swaps the outbound client.
func (r *Relay) WithHTTPClient(c *http.Client) *Relay {
	r.client = c
	return r
}

func (r *Relay) RegisterRoutes(e *echo.Echo) {
	g := e.Group(Path, corsHeaders)
	g.OPTIONS("", r.Preflight)
	g.POST("", r.Chat)
}

// corsHeaders stamps the permissive CORS headers on every relay response,
// errors included.
func corsHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set(echo.HeaderAccessControlAllowOrigin, "*")
		h.Set(echo.HeaderAccessControlAllowHeaders, allowHeaders)
		return next(c)
	}
}

func (r *Relay) Preflight(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

type chatRequest struct {
	Messages      json.RawMessage `json:"messages"`
	SystemPrompt  json.RawMessage `json:"systemPrompt"`
	HealthContext json.RawMessage `json:"healthContext"`
}

var errNullBody = errors.New("request body must be a JSON object, got null")

// decodeChatRequest reads the inbound body. null is rejected; any other
// non-object value carries no fields, like destructuring it would.
func decodeChatRequest(r io.Reader) (chatRequest, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return chatRequest{}, err
	}
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return chatRequest{}, errNullBody
	}
	var req chatRequest
	if raw[0] != '{' {
		return req, nil
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return chatRequest{}, err
	}
	return req, nil
}

// promptText turns an optional prompt field into a string. Absent and null mean
// unset; strings are used as is; other values are used as their JSON text.
func promptText(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	return &s
}

type upstreamRequest struct {
	Model       string            `json:"model"`
	Messages    []json.RawMessage `json:"messages"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// conversation returns the caller's messages untouched, or none when the
// field is absent or not an array.
func conversation(raw json.RawMessage) []json.RawMessage {
	var msgs []json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil
	}
	if err := json.Unmarshal(trimmed, &msgs); err != nil {
		return nil
	}
	return msgs
}

func (r *Relay) Chat(c echo.Context) error {
	req, err := decodeChatRequest(c.Request().Body)
	if err != nil {
		r.logger.Error().Err(err).Msg("decode relay request")
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	if r.cfg.APIKey == "" {
		return errorJSON(c, http.StatusInternalServerError, "LLM_API_KEY is not configured")
	}

	system, err := json.Marshal(map[string]string{
		"role":    "system",
		"content": SystemPrompt(r.cfg.SystemPrompt, promptText(req.SystemPrompt), promptText(req.HealthContext)),
	})
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	body, err := json.Marshal(upstreamRequest{
		Model:       r.cfg.Model,
		Messages:    append([]json.RawMessage{system}, conversation(req.Messages)...),
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
	})
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	status, payload, err := r.forward(c, body)
	if err != nil {
		r.logger.Error().Err(err).Msg("relay upstream call failed")
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	if status < 200 || status > 299 {
		r.logger.Error().Int("status", status).Str("body", truncate(string(payload), 512)).Msg("upstream returned error")
	}
	return c.Blob(status, echo.MIMEApplicationJSON, payload)
}

func (r *Relay) forward(c echo.Context, body []byte) (int, []byte, error) {
	endpoint := strings.TrimRight(r.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		r.obs.ObserveUpstream(0, time.Since(start), err)
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	r.obs.ObserveUpstream(resp.StatusCode, time.Since(start), err)
	if err != nil {
		return 0, nil, fmt.Errorf("read upstream body: %w", err)
	}
	return resp.StatusCode, payload, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
