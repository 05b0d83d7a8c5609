package generate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/internal/model"
	"github.com/quillworks/quill/pkg/anthropic"
)

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func (m *mockLLM) GenerateText(ctx context.Context, modelID string, maxTokens int64, system, prompt string) (string, error) {
	args := m.Called(ctx, modelID, maxTokens, system, prompt)
	return args.String(0), args.Error(1)
}

func testArticle() model.Article {
	return model.Article{
		Title:   "GPT-5 Launches",
		URL:     "https://example.com/gpt5",
		Summary: "A new model is out.",
		Source:  "ai-news",
	}
}

func TestForAccount_UsesGeneratedText(t *testing.T) {
	llm := &mockLLM{}
	llm.On("GenerateText", mock.Anything, "m-1", int64(1024), "", mock.Anything).
		Return("  fresh take on GPT-5  ", nil)

	g := New(llm, "m-1", 1024)
	text := g.ForAccount(context.Background(), testArticle(), model.Account{UserID: "u-1"}, nil)

	assert.Equal(t, "fresh take on GPT-5", text)
	llm.AssertExpectations(t)
}

func TestForAccount_FallbackOnError(t *testing.T) {
	llm := &mockLLM{}
	llm.On("GenerateText", mock.Anything, "m-1", int64(1024), "", mock.Anything).
		Return("", assert.AnError)

	g := New(llm, "m-1", 1024)
	text := g.ForAccount(context.Background(), testArticle(), model.Account{UserID: "u-1"}, nil)

	assert.Contains(t, text, "GPT-5 Launches")
	assert.Contains(t, text, "https://example.com/gpt5")
}

func TestForAccount_FallbackOnBlank(t *testing.T) {
	llm := &mockLLM{}
	llm.On("GenerateText", mock.Anything, "m-1", int64(1024), "", mock.Anything).
		Return("   \n", nil)

	g := New(llm, "m-1", 1024)
	text := g.ForAccount(context.Background(), testArticle(), model.Account{UserID: "u-1"}, nil)

	assert.Contains(t, text, "GPT-5 Launches")
}

func TestForAccount_PromptPrecedence(t *testing.T) {
	article := testArticle()
	topic := &model.Topic{Name: "ai", DefaultPrompt: "topic prompt"}

	t.Run("account prompt wins", func(t *testing.T) {
		p := PromptFor(model.Account{Prompt: "account prompt"}, topic, article)
		assert.Equal(t, "account prompt", p)
	})

	t.Run("topic default next", func(t *testing.T) {
		p := PromptFor(model.Account{}, topic, article)
		assert.Equal(t, "topic prompt", p)
	})

	t.Run("builtin template last", func(t *testing.T) {
		p := PromptFor(model.Account{}, nil, article)
		assert.Contains(t, p, "AI technology influencer")
	})

	t.Run("non-ai source gets general template", func(t *testing.T) {
		plain := article
		plain.Source = "cooking-blog"
		p := PromptFor(model.Account{}, nil, plain)
		assert.Contains(t, p, "content creator")
	})
}

func TestShortReply_Truncates(t *testing.T) {
	llm := &mockLLM{}
	llm.On("GenerateText", mock.Anything, "m-1", int64(1024), "", mock.Anything).
		Return("this reply is definitely longer than fifteen characters", nil)

	g := New(llm, "m-1", 1024)
	reply, err := g.ShortReply(context.Background(), "post", "comment", 15)
	require.NoError(t, err)
	assert.Len(t, []rune(reply), 15)
}

func TestShortReply_ErrorPropagates(t *testing.T) {
	llm := &mockLLM{}
	llm.On("GenerateText", mock.Anything, "m-1", int64(1024), "", mock.Anything).
		Return("", assert.AnError)

	g := New(llm, "m-1", 1024)
	_, err := g.ShortReply(context.Background(), "post", "comment", 15)
	require.Error(t, err)
}

func TestFallback_LongForm(t *testing.T) {
	text := Fallback(testArticle())
	assert.Contains(t, text, "🤖")
	assert.Contains(t, text, "GPT-5 Launches")
	assert.Contains(t, text, "A new model is out.")
	assert.Contains(t, text, "#Content #Update")
	assert.Contains(t, text, "https://example.com/gpt5")
}

func TestFallback_ShortFormWhenTooLong(t *testing.T) {
	article := model.Article{
		Title:   strings.Repeat("T", 300),
		Summary: strings.Repeat("s", 300),
		URL:     strings.Repeat("u", 300),
		Source:  "hn",
	}
	text := Fallback(article)
	assert.NotContains(t, text, "#Content #Update")
	assert.Contains(t, text, "...")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abc...", clip("abcdefgh", 6))
}
