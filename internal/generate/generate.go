// Package generate turns crawled articles into platform-ready post text.
// Generation never fails a publish: any model error or blank output falls
// back to templated content built from the article itself.
package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quillworks/quill/internal/model"
	"github.com/quillworks/quill/pkg/anthropic"
)

const fallbackMaxLen = 500

// Generator produces post and reply text via the LLM client.
type Generator struct {
	llm       anthropic.Client
	model     string
	maxTokens int64
}

// New creates a Generator.
func New(llm anthropic.Client, modelID string, maxTokens int64) *Generator {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Generator{llm: llm, model: modelID, maxTokens: maxTokens}
}

// ForAccount generates post text for one account. The prompt follows the
// account > topic > built-in precedence; failures and blank outputs fall
// back to Fallback.
func (g *Generator) ForAccount(ctx context.Context, article model.Article, account model.Account, topic *model.Topic) string {
	prompt := contextualPrompt(PromptFor(account, topic, article), article)

	text, err := g.llm.GenerateText(ctx, g.model, g.maxTokens, "", prompt)
	if err != nil {
		zap.L().Warn("content generation failed, using fallback",
			zap.String("article", article.Title),
			zap.String("account", account.UserID),
			zap.Error(err))
		return Fallback(article)
	}
	if strings.TrimSpace(text) == "" {
		zap.L().Warn("content generation returned blank output, using fallback",
			zap.String("article", article.Title),
			zap.String("account", account.UserID))
		return Fallback(article)
	}
	return strings.TrimSpace(text)
}

// ShortReply generates a reply to a comment, truncated to maxChars runes.
func (g *Generator) ShortReply(ctx context.Context, postText, commentText string, maxChars int) (string, error) {
	if maxChars <= 0 {
		maxChars = 15
	}
	prompt := fmt.Sprintf(
		"Someone commented %q on the post %q. Write a friendly reply of at most %d characters. Reply with the text only.",
		commentText, postText, maxChars)

	text, err := g.llm.GenerateText(ctx, g.model, g.maxTokens, "", prompt)
	if err != nil {
		return "", eris.Wrap(err, "generate: short reply")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", eris.New("generate: blank reply")
	}
	if runes := []rune(text); len(runes) > maxChars {
		text = string(runes[:maxChars])
	}
	return text, nil
}

// Fallback builds templated post text from the article alone. The long form
// carries title, summary, and URL; if that exceeds 500 characters a shorter
// title-and-URL form is used.
func Fallback(article model.Article) string {
	text := fmt.Sprintf("🤖 %s\n\n%s\n\n#Content #Update\n\n%s",
		clip(article.Title, 100),
		clip(article.Summary, 120),
		article.URL,
	)
	if len([]rune(text)) > fallbackMaxLen {
		text = fmt.Sprintf("🤖 %s\n\n%s", clip(article.Title, 200), article.URL)
	}
	return text
}

// clip truncates s to max runes, appending "..." when it was cut.
func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
