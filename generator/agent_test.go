package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type scriptedLLM struct {
	reply   string
	err     error
	prompts []Prompt
}

func (s *scriptedLLM) Complete(_ context.Context, p Prompt) (string, error) {
	s.prompts = append(s.prompts, p)
	return s.reply, s.err
}

func TestAgentArticle(t *testing.T) {
	title := "Qloga " + strings.Repeat("t", 70)
	llm := &scriptedLLM{reply: `{"title":"` + title + `","subtitle":"Meet qloga","content":"<p>QLOGA is local.</p>"}`}
	agent, err := NewAgent(llm)
	if err != nil {
		t.Fatal(err)
	}

	a, err := agent.Article(context.Background(), "  plumbing in Leith ")
	if err != nil {
		t.Fatalf("Article: %v", err)
	}
	if !strings.HasPrefix(a.Title, qlogaLink) || !strings.HasSuffix(a.Title, "...") {
		t.Fatalf("title = %q", a.Title)
	}
	if a.Subtitle != "Meet "+qlogaLink {
		t.Fatalf("subtitle = %q", a.Subtitle)
	}
	if a.Content != "<p>"+qlogaLink+" is local.</p>" {
		t.Fatalf("content = %q", a.Content)
	}

	p := llm.prompts[0]
	if p.Tool == nil || p.Tool.Name != articleTool {
		t.Fatalf("article prompt must force the %s tool", articleTool)
	}
	if !strings.Contains(p.User, "about plumbing in Leith in British English") {
		t.Fatalf("topic missing from prompt: %q", p.User)
	}
	if p.MaxTokens != 4000 || p.Temperature != 0.7 {
		t.Fatalf("unexpected sampling settings: %+v", p)
	}
}

func TestAgentArticleErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	agent, _ := NewAgent(&scriptedLLM{err: boom})
	if _, err := agent.Article(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped llm error, got %v", err)
	}
	if _, err := agent.Article(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty topic")
	}

	agent, _ = NewAgent(&scriptedLLM{reply: "not json"})
	if _, err := agent.Article(context.Background(), "x"); !errors.Is(err, ErrMalformedArticle) {
		t.Fatalf("expected ErrMalformedArticle, got %v", err)
	}
}

func TestAgentImagePhrase(t *testing.T) {
	llm := &scriptedLLM{reply: "  \"Edinburgh Castle at sunrise\"\n"}
	agent, _ := NewAgent(llm)
	phrase, err := agent.ImagePhrase(context.Background(), "castles")
	if err != nil {
		t.Fatal(err)
	}
	if phrase != "Edinburgh Castle at sunrise" {
		t.Fatalf("phrase = %q", phrase)
	}
	if llm.prompts[0].Tool != nil || llm.prompts[0].MaxTokens != 100 {
		t.Fatalf("unexpected image prompt: %+v", llm.prompts[0])
	}

	agent, _ = NewAgent(&scriptedLLM{reply: "   "})
	if _, err := agent.ImagePhrase(context.Background(), "castles"); err == nil {
		t.Fatal("expected error for empty phrase")
	}
}

func TestMockLLMProducesArticle(t *testing.T) {
	agent, _ := NewAgent(MockLLM{})
	a, err := agent.Article(context.Background(), "roof repairs")
	if err != nil {
		t.Fatalf("Article: %v", err)
	}
	if a.Title != "A guide to roof repairs" {
		t.Fatalf("title = %q", a.Title)
	}
	if !strings.Contains(a.Content, qlogaLink) {
		t.Fatalf("content not brand formatted: %q", a.Content)
	}
	phrase, err := agent.ImagePhrase(context.Background(), "roof repairs")
	if err != nil || !strings.Contains(phrase, "roof repairs") {
		t.Fatalf("phrase = %q, err = %v", phrase, err)
	}
}

func TestNewAgentRequiresLLM(t *testing.T) {
	if _, err := NewAgent(nil); err == nil {
		t.Fatal("expected error")
	}
}
