// Package mocks provides an HTTP mock of the OpenAI-compatible advisor API used in E2E tests.
package mocks

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockServer serves scripted chat completions
type MockServer struct {
	mu     sync.RWMutex
	server *httptest.Server

	// Response configuration. content wins over signal when set.
	signal  Signal
	content string

	// Error injection
	errorStatus int

	// Request tracking for assertions
	requestLog []RequestLog
}

// RequestLog records incoming requests for test assertions.
type RequestLog struct {
	Method  string
	Path    string
	Request ChatRequest
}

// NewMockServer creates a new mock server that answers with a hold signal
func NewMockServer() *MockServer {
	m := &MockServer{
		signal: Signal{Symbol: "BTC/USD", Action: "hold", Confidence: 0.5, Reasoning: "no clear trend"},
	}
	m.server = httptest.NewServer(m)
	return m
}

// URL returns the base URL to configure as the advisor endpoint
func (m *MockServer) URL() string {
	return m.server.URL + "/v1/"
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	m.server.Close()
}

// ServeHTTP implements http.Handler
func (m *MockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var req ChatRequest
	body, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(body, &req)

	m.mu.Lock()
	m.requestLog = append(m.requestLog, RequestLog{Method: r.Method, Path: r.URL.Path, Request: req})
	status, content, signal := m.errorStatus, m.content, m.signal
	m.mu.Unlock()

	if status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":{"message":"mock advisor error","type":"invalid_request_error"}}`)
		return
	}

	if content == "" {
		raw, _ := json.Marshal(signal)
		content = string(raw)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ChatResponse{
		ID:      "chatcmpl-mock",
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      ChatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: ChatUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	})
}

// SetSignal scripts the signal returned by the next completions
func (m *MockServer) SetSignal(s Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signal = s
	m.content = ""
	m.errorStatus = 0
}

// SetRawContent scripts a literal completion body, e.g. malformed JSON
func (m *MockServer) SetRawContent(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = content
	m.errorStatus = 0
}

// SetError makes every completion fail with status. Use a 4xx status to avoid client retries.
func (m *MockServer) SetError(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorStatus = status
}

// GetRequestLog returns all logged requests for assertions.
func (m *MockServer) GetRequestLog() []RequestLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RequestLog{}, m.requestLog...)
}

// ClearRequestLog clears the request log.
func (m *MockServer) ClearRequestLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestLog = nil
}
