package generator

import (
	"context"
	"encoding/json"
	"strings"
)

// MockLLM is an offline stand-in used with LLM_PROVIDER=mock; it never calls a model.
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	topic := mockTopic(prompt.User)
	if prompt.Tool == nil {
		return "Edinburgh Old Town street at dusk, " + topic, nil
	}

	// same shape as the create_article tool arguments
	var sb strings.Builder
	sb.WriteString("<h2>Introduction</h2>\n")
	sb.WriteString("<p>A short offline article about " + topic + " for readers around Edinburgh, brought to you by qloga.</p>\n")
	sb.WriteString("<h2>Details</h2>\n<ul><li>Local tips</li><li>Useful contacts</li></ul>\n")
	sb.WriteString("<h2>Conclusion</h2>\n<p>Thanks for reading.</p>")
	out, err := json.Marshal(Article{
		Title:    "A guide to " + topic,
		Subtitle: "What you need to know about " + topic + " in Scotland",
		Content:  sb.String(),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func mockTopic(user string) string {
	const marker = "about "
	i := strings.Index(user, marker)
	if i < 0 {
		return "local services"
	}
	rest := user[i+len(marker):]
	if j := strings.IndexAny(rest, ".\n"); j >= 0 {
		rest = rest[:j]
	}
	rest = strings.TrimSuffix(strings.TrimSpace(rest), " in British English")
	if rest == "" {
		return "local services"
	}
	return rest
}
