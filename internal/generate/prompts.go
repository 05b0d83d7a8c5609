package generate

import (
	"fmt"
	"strings"

	"github.com/quillworks/quill/internal/model"
)

const aiPrompt = `You are an AI technology influencer creating engaging Threads posts about AI news.

Transform the article below into a casual, engaging Threads post.

Guidelines:
- Keep it under 280 characters
- Use a casual, tech-savvy tone
- Include relevant AI emojis
- Add hashtags (#AI #MachineLearning #Tech #Innovation)
- Make it shareable and thought-provoking
- Include the URL at the end`

const lifeHacksPrompt = `You are a life-hacks influencer creating engaging Threads posts about productivity and life tips.

Transform the article below into a casual, helpful Threads post.

Guidelines:
- Keep it under 280 characters
- Use a friendly, helpful tone
- Include relevant emojis
- Add hashtags (#LifeHacks #Productivity #Tips #LifeStyle)
- Make it actionable and inspiring
- Include the URL at the end`

const generalPrompt = `You are a content creator making engaging Threads posts.

Transform the article below into a casual, engaging Threads post.

Guidelines:
- Keep it under 280 characters
- Use a casual, engaging tone
- Include relevant emojis
- Add appropriate hashtags
- Make it shareable
- Include the URL at the end`

// defaultPromptForTopic returns the built-in template for a topic name.
func defaultPromptForTopic(name string) string {
	switch strings.ToLower(name) {
	case "ai":
		return aiPrompt
	case "life-hacks":
		return lifeHacksPrompt
	default:
		return generalPrompt
	}
}

// defaultPromptForSource guesses a topic template from the source name.
func defaultPromptForSource(sourceName string) string {
	if strings.Contains(strings.ToLower(sourceName), "ai") {
		return defaultPromptForTopic("ai")
	}
	return defaultPromptForTopic("general")
}

// PromptFor selects the generation prompt for an account: the account's own
// prompt wins, then the topic's default, then a built-in template keyed off
// the article's source.
func PromptFor(account model.Account, topic *model.Topic, article model.Article) string {
	if strings.TrimSpace(account.Prompt) != "" {
		return account.Prompt
	}
	if topic != nil && strings.TrimSpace(topic.DefaultPrompt) != "" {
		return topic.DefaultPrompt
	}
	return defaultPromptForSource(article.Source)
}

// contextualPrompt appends the article's fields to the chosen prompt.
func contextualPrompt(prompt string, article model.Article) string {
	source := article.Source
	if source == "" {
		source = "Unknown"
	}
	return fmt.Sprintf("%s\n\nTitle: %s\nSummary: %s\nURL: %s\nSource: %s\n\nCreate the Threads post:",
		prompt, article.Title, article.Summary, article.URL, source)
}
