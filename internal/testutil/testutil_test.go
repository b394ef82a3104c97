package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// mockTB records failures instead of failing the enclosing test.
type mockTB struct {
	failed bool
	fatal  bool
	msg    string
}

func (m *mockTB) Helper() {}

func (m *mockTB) Errorf(format string, args ...any) {
	m.failed = true
	m.msg = fmt.Sprintf(format, args...)
}

func (m *mockTB) Fatalf(format string, args ...any) {
	m.failed = true
	m.fatal = true
	m.msg = fmt.Sprintf(format, args...)
}

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{"matching status codes", 200, 200, false},
		{"different status codes", 200, 404, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockTB{}
			AssertHTTPStatus(m, tt.expected, tt.actual, "ctx")
			if m.failed != tt.shouldFail {
				t.Errorf("failed = %v, want %v (%s)", m.failed, tt.shouldFail, m.msg)
			}
		})
	}
}

func TestAssertAPIStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Body.WriteString(`{"status":"ok","result":{"n":1}}`)
	m := &mockTB{}
	resp := AssertAPIStatus(m, rr, models.APIStatusOK)
	if m.failed || resp.Result == nil {
		t.Errorf("unexpected failure %q or result %+v", m.msg, resp)
	}

	rr = httptest.NewRecorder()
	rr.Body.WriteString(`{"status":"error","message":"boom"}`)
	m = &mockTB{}
	AssertAPIStatus(m, rr, models.APIStatusOK)
	if !m.failed {
		t.Error("expected status mismatch to fail")
	}

	rr = httptest.NewRecorder()
	rr.Body.WriteString(`not json`)
	m = &mockTB{}
	AssertAPIStatus(m, rr, models.APIStatusOK)
	if !m.fatal {
		t.Error("expected invalid JSON to be fatal")
	}
}

func TestNewJSONRequest(t *testing.T) {
	req := NewJSONRequest(t, http.MethodPost, "/x", map[string]int{"a": 1})
	body, _ := io.ReadAll(req.Body)
	if string(body) != `{"a":1}` || req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("unexpected request body %q", body)
	}

	req = NewJSONRequest(t, http.MethodPost, "/x", "{bad")
	body, _ = io.ReadAll(req.Body)
	if string(body) != "{bad" {
		t.Errorf("raw string body changed: %q", body)
	}
}

func TestScriptedCompleter(t *testing.T) {
	c := &ScriptedCompleter{ProviderName: "fake", Responses: []string{"one", "two"}}
	ctx := context.Background()
	for _, want := range []string{"one", "two", "two"} {
		got, err := c.Complete(ctx, "sys", "u-"+want)
		if err != nil || got != want {
			t.Errorf("got %q, %v; want %q", got, err, want)
		}
	}
	if c.Calls() != 3 || c.LastUserPrompt() != "u-two" {
		t.Errorf("calls=%d last=%q", c.Calls(), c.LastUserPrompt())
	}

	failing := &ScriptedCompleter{ProviderName: "bad", Err: errors.New("503")}
	if _, err := failing.Complete(ctx, "", ""); err == nil {
		t.Error("expected scripted error")
	}
}

func TestUserMessages(t *testing.T) {
	msgs := UserMessages("a", "b")
	if len(msgs) != 2 || msgs[1].Role != models.RoleUser || msgs[1].Content != "b" {
		t.Errorf("unexpected messages %+v", msgs)
	}
}
