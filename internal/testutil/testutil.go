// Package testutil provides shared helpers and fakes for kwlq tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// TB is the subset of testing.TB used by the helpers, so they can be checked
// against a recorder in their own tests.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// DecodeJSON decodes the recorded body into target.
func DecodeJSON(t TB, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode JSON response %q: %v", rr.Body.String(), err)
	}
}

// AssertAPIStatus decodes an APIResponse envelope and checks its status field.
func AssertAPIStatus(t TB, rr *httptest.ResponseRecorder, expected models.APIStatus) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	DecodeJSON(t, rr, &resp)
	if resp.Status != string(expected) {
		t.Errorf("expected status %q, got %q (message %q)", expected, resp.Status, resp.Message)
	}
	return resp
}

// NewJSONRequest builds a request whose body is body marshalled as JSON. A
// string or []byte body is sent as is.
func NewJSONRequest(t TB, method, url string, body any) *http.Request {
	t.Helper()
	var data []byte
	switch b := body.(type) {
	case nil:
	case string:
		data = []byte(b)
	case []byte:
		data = b
	default:
		var err error
		if data, err = json.Marshal(body); err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// UserMessages turns texts into user chat turns.
func UserMessages(texts ...string) []models.ChatMessage {
	msgs := make([]models.ChatMessage, len(texts))
	for i, s := range texts {
		msgs[i] = models.ChatMessage{Role: models.RoleUser, Content: s}
	}
	return msgs
}

// ScriptedCompleter is a fake LLM provider returning canned responses in order.
// The last response repeats once the script is exhausted.
type ScriptedCompleter struct {
	ProviderName string
	Responses    []string
	Err          error

	mu    sync.Mutex
	next  int
	calls atomic.Int32
	last  string
}

// Name returns the provider name.
func (s *ScriptedCompleter) Name() string { return s.ProviderName }

// Complete returns the next scripted response or Err.
func (s *ScriptedCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.last = user
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Err != nil {
		return "", s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Responses) == 0 {
		return "", nil
	}
	i := s.next
	if i >= len(s.Responses) {
		i = len(s.Responses) - 1
	} else {
		s.next++
	}
	return s.Responses[i], nil
}

// Calls returns how many times Complete was called.
func (s *ScriptedCompleter) Calls() int { return int(s.calls.Load()) }

// LastUserPrompt returns the user prompt of the most recent call.
func (s *ScriptedCompleter) LastUserPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
