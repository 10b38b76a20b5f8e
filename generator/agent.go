package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Agent turns a topic into a formatted article and an image search phrase.
type Agent struct {
	llm    LLMClient
	style  Style
	limits Limits
	brand  Brand
}

// Option customises an Agent.
type Option func(*Agent)

func WithStyle(s Style) Option   { return func(a *Agent) { a.style = s } }
func WithLimits(l Limits) Option { return func(a *Agent) { a.limits = l } }
func WithBrand(b Brand) Option   { return func(a *Agent) { a.brand = b } }

func NewAgent(llm LLMClient, opts ...Option) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	a := &Agent{
		llm:    llm,
		style:  DefaultStyle(),
		limits: DefaultLimits(),
		brand:  DefaultBrand(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Article generates, validates and brand-formats an article. Length limits
// apply to the raw text, before links are inserted.
func (a *Agent) Article(ctx context.Context, topic string) (Article, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Article{}, errors.New("topic is empty")
	}
	raw, err := a.llm.Complete(ctx, BuildArticlePrompt(topic, a.style, a.limits))
	if err != nil {
		return Article{}, fmt.Errorf("generate article: %w", err)
	}
	art, err := PostProcess(raw, a.limits)
	if err != nil {
		return Article{}, err
	}
	return a.brand.FormatArticle(art), nil
}

// ImagePhrase asks the model for a short stock-photo description of topic.
func (a *Agent) ImagePhrase(ctx context.Context, topic string) (string, error) {
	raw, err := a.llm.Complete(ctx, BuildImagePrompt(topic, a.style))
	if err != nil {
		return "", fmt.Errorf("generate image phrase: %w", err)
	}
	phrase := strings.Trim(strings.TrimSpace(raw), `"'`)
	if phrase == "" {
		return "", errors.New("model returned an empty image description")
	}
	return phrase, nil
}
