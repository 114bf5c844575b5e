package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/phonospell/pkg/provider/llm"
)

func TestConvertMessage_User(t *testing.T) {
	got, err := convertMessage(llm.Message{Role: "user", Content: `Fix spelling: "I have enuff"`})
	if err != nil {
		t.Fatalf("convertMessage: %v", err)
	}
	if got.Role != "user" {
		t.Errorf("expected role user, got %q", got.Role)
	}
	if got.ContentString() != `Fix spelling: "I have enuff"` {
		t.Errorf("unexpected content %q", got.ContentString())
	}
}

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "phi4-mini"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You fix spelling.",
		Messages:     []llm.Message{{Role: "user", Content: "hi"}},
		Temperature:  0.1,
		MaxTokens:    150,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}

	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first message role = %q, want system", params.Messages[0].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.1 {
		t.Errorf("temperature not forwarded: %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 150 {
		t.Errorf("max tokens not forwarded: %v", params.MaxTokens)
	}
}

func TestBuildParams_ZeroValuesOmitted(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message without system prompt, got %d", len(params.Messages))
	}
	if params.Temperature != nil {
		t.Error("temperature should be nil when zero")
	}
	if params.MaxTokens != nil {
		t.Error("max tokens should be nil when zero")
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model      string
		wantOutput int
	}{
		{"gpt-4o-mini", 16_384},
		{"GPT-4o", 16_384},
		{"claude-3-5-sonnet-latest", 8_192},
		{"gemini-2.0-flash", 8_192},
		{"phi4-mini", 2_048},
		{"llama3.2:1b", 2_048},
		{"some-unknown-model", 4_096},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.MaxOutputTokens != tt.wantOutput {
				t.Errorf("MaxOutputTokens = %d, want %d", caps.MaxOutputTokens, tt.wantOutput)
			}
		})
	}
}

func TestNew_EmptyProviderName(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	if _, err := New("openai", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestBuildParams_UnknownRole(t *testing.T) {
	p := &Provider{model: "phi4-mini"}
	if _, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "tool", Content: "x"}},
	}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestNew_NormalisesName(t *testing.T) {
	p, err := New(" OpenAI ", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.name != "openai" || p.model != "gpt-4o-mini" {
		t.Errorf("got name %q model %q", p.name, p.model)
	}
}

func TestNew_Ollama_NoAPIKey(t *testing.T) {
	p, err := New("ollama", "phi4-mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

func TestSetCapabilities(t *testing.T) {
	p, err := New("llamacpp", "phi-4", anyllmlib.WithBaseURL("http://localhost:8080/v1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.SetCapabilities(0, 512)
	got := p.Capabilities()
	if got.ContextWindow != 8_192 || got.MaxOutputTokens != 512 {
		t.Errorf("Capabilities() = %+v, want {8192 512}", got)
	}
}
