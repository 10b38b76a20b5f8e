package generator

import (
	"fmt"
	"strings"
)

// Prompt is the set of messages sent to the LLM.
type Prompt struct {
	System string
	User   string
	// Tool, when set, forces a single function call whose JSON arguments
	// become the completion text.
	Tool        *ToolSpec
	Temperature float64
	MaxTokens   int
}

// ToolSpec describes a function the model must call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

const articleTool = "create_article"

func articleToolSpec(limits Limits) *ToolSpec {
	return &ToolSpec{
		Name:        articleTool,
		Description: "Create an SEO-optimized article",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{
					"type":        "string",
					"description": fmt.Sprintf("SEO-optimized title (maximum %d characters)", limits.Title),
				},
				"subtitle": map[string]any{
					"type":        "string",
					"description": fmt.Sprintf("Compelling subtitle (maximum %d characters)", limits.Subtitle),
				},
				"content": map[string]any{
					"type":        "string",
					"description": "HTML formatted content with proper headings, paragraphs, and lists",
				},
			},
			"required": []string{"title", "subtitle", "content"},
		},
	}
}

// BuildArticlePrompt asks for a structured article about topic.
func BuildArticlePrompt(topic string, style Style, limits Limits) Prompt {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Write a medium-length, SEO-optimized article about %s in %s.\n", topic, style.Language))
	sb.WriteString(fmt.Sprintf("Focus on %s.\n\n", style.Region))
	sb.WriteString("The content should be well-structured with:\n")
	sb.WriteString("- An engaging introduction\n")
	sb.WriteString("- 2-3 main sections with subheadings\n")
	sb.WriteString("- A strong conclusion\n")
	sb.WriteString(fmt.Sprintf("- Relevant local information about %s\n", style.Place))
	sb.WriteString("- SEO-optimized content\n")
	sb.WriteString("- Proper HTML formatting with <h2>, <p>, <ul> tags etc.")

	return Prompt{
		System:      style.Writer,
		User:        sb.String(),
		Tool:        articleToolSpec(limits),
		Temperature: 0.7,
		MaxTokens:   4000,
	}
}

// BuildImagePrompt asks for a short stock-photo description for topic.
func BuildImagePrompt(topic string, style Style) Prompt {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Generate a short, specific description for an image that would be perfect for an article about %s.\n", topic))
	sb.WriteString(fmt.Sprintf("The image should be relevant to %s.\n", style.Region))
	sb.WriteString("Make the description specific enough for a stock photo search.\n")
	sb.WriteString("Return only the description, no additional text.")

	return Prompt{
		System:      style.Photographer,
		User:        sb.String(),
		Temperature: 0.7,
		MaxTokens:   100,
	}
}
