package genai

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	googlegenai "google.golang.org/genai"
)

type mockMessageService struct {
	msg  *anthropic.Message
	err  error
	last anthropic.MessageNewParams
}

func (m *mockMessageService) New(ctx context.Context, body anthropic.MessageNewParams, opts ...anthropicoption.RequestOption) (*anthropic.Message, error) {
	m.last = body
	return m.msg, m.err
}

func TestAnthropicComplete(t *testing.T) {
	mock := &mockMessageService{msg: &anthropic.Message{Content: []anthropic.ContentBlockUnion{
		{Type: "text", Text: `{"currentPhase":`},
		{Type: "text", Text: `"W"}`},
	}}}
	c := &AnthropicClient{messages: mock, model: "m", maxTokens: 128}
	out, err := c.Complete(context.Background(), "sys", "usr")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"currentPhase":"W"}` {
		t.Errorf("unexpected output %q", out)
	}
	if mock.last.MaxTokens != 128 || len(mock.last.System) != 1 || mock.last.System[0].Text != "sys" {
		t.Errorf("unexpected params: %+v", mock.last)
	}
}

func TestAnthropicComplete_Error(t *testing.T) {
	c := &AnthropicClient{messages: &mockMessageService{err: errors.New("overloaded")}}
	if _, err := c.Complete(context.Background(), "s", "u"); err == nil {
		t.Error("expected error")
	}
	c = &AnthropicClient{messages: &mockMessageService{msg: &anthropic.Message{}}}
	if _, err := c.Complete(context.Background(), "s", "u"); err != ErrEmptyResponse {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

type mockGenerator struct {
	resp  *googlegenai.GenerateContentResponse
	err   error
	model string
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*googlegenai.Content, config *googlegenai.GenerateContentConfig) (*googlegenai.GenerateContentResponse, error) {
	m.model = model
	return m.resp, m.err
}

func TestGeminiComplete(t *testing.T) {
	mock := &mockGenerator{resp: &googlegenai.GenerateContentResponse{
		Candidates: []*googlegenai.Candidate{{
			Content: &googlegenai.Content{Parts: []*googlegenai.Part{{Text: `{"currentPhase":"L"}`}}},
		}},
	}}
	c := &GeminiClient{models: mock, model: "gemini-test"}
	out, err := c.Complete(context.Background(), "sys", "usr")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"currentPhase":"L"}` || mock.model != "gemini-test" {
		t.Errorf("unexpected output %q model %q", out, mock.model)
	}
}

func TestGeminiComplete_Empty(t *testing.T) {
	c := &GeminiClient{models: &mockGenerator{resp: &googlegenai.GenerateContentResponse{}}}
	if _, err := c.Complete(context.Background(), "s", "u"); err != ErrEmptyResponse {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestParseProviderList(t *testing.T) {
	got := ParseProviderList(" DeepSeek, gemini,,openai,deepseek ")
	want := []string{"deepseek", "gemini", "openai"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

type mapGetter map[string]string

func (m mapGetter) GetParameter(_ context.Context, name string) (string, error) {
	if v, ok := m[name]; ok {
		return v, nil
	}
	return "", errors.New("parameter not found")
}

func TestBuildProviders(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "")
	getter := mapGetter{"/kwlq/anthropic_api_key": "from-ssm"}
	cfgs := []ProviderConfig{
		{Name: ProviderDeepSeek, APIKey: "ds-key"},
		{Name: ProviderOpenAI},
		{Name: ProviderAnthropic},
		{Name: "unknown", APIKey: "x"},
	}
	got := BuildProviders(context.Background(), cfgs, getter, "/kwlq/")
	var names []string
	for _, p := range got {
		names = append(names, p.Name())
	}
	want := []string{ProviderDeepSeek, ProviderAnthropic}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("got %v, want %v", names, want)
	}
}

func TestParameterName(t *testing.T) {
	if got := ParameterName("/kwlq/", "gemini"); got != "/kwlq/gemini_api_key" {
		t.Errorf("unexpected parameter name %q", got)
	}
}
