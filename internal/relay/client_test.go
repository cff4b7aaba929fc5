package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClient_Reply(t *testing.T) {
	var received ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &received)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"清蒸鸡胸肉"}}]}`)
	}))
	defer srv.Close()

	ctx := "用户暂无健康记录。"
	got, err := NewClient(srv.URL, nil).Reply(context.Background(), ChatRequest{
		Messages:      []Message{{Role: "user", Content: "午餐"}},
		HealthContext: &ctx,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "清蒸鸡胸肉" {
		t.Errorf("unexpected reply %q", got)
	}
	if received.HealthContext == nil || *received.HealthContext != ctx || received.SystemPrompt != nil {
		t.Errorf("unexpected request %+v", received)
	}
}

func TestClient_ReplyFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
		err    bool
	}{
		{"upstream error", http.StatusInternalServerError, `{"error":"boom"}`, FallbackReply, true},
		{"no choices", http.StatusOK, `{"choices":[]}`, EmptyReply, false},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":""}}]}`, EmptyReply, false},
		{"not json", http.StatusOK, `<html>`, FallbackReply, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			got, err := NewClient(srv.URL, srv.Client()).Reply(context.Background(), ChatRequest{})
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
			if (err != nil) != tt.err {
				t.Errorf("error = %v, want error %v", err, tt.err)
			}
		})
	}
}

func TestTrimHistory(t *testing.T) {
	history := []Message{
		{Role: "assistant", Content: Greeting},
		{Role: "user", Content: "u1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "u2"},
		{Role: "assistant", Content: "a2"},
		{Role: "user", Content: "u3"},
		{Role: "assistant", Content: "a3"},
	}
	want := []Message{
		{Role: "user", Content: "u1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "u2"},
		{Role: "assistant", Content: "a2"},
		{Role: "user", Content: "u3"},
		{Role: "assistant", Content: "a3"},
	}
	if diff := cmp.Diff(want, TrimHistory(history, HistoryWindow)); diff != "" {
		t.Errorf("TrimHistory (-want +got):\n%s", diff)
	}
}

func TestSystemPrompt(t *testing.T) {
	empty := ""
	ctx := "用户暂无健康记录。"
	custom := "  只回答早餐  "

	tests := []struct {
		name              string
		override, context *string
		want              string
	}{
		{"base only", nil, nil, BasePrompt},
		{"base with context", nil, &ctx, BasePrompt + "\n\n" + ctx},
		{"empty override with context", &empty, &ctx, ctx},
		{"custom override trimmed", &custom, nil, "只回答早餐"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SystemPrompt(BasePrompt, tt.override, tt.context); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
