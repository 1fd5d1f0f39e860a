package openai

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/sashabaranov/go-openai"

	"github.com/dockeep/dockeep/internal/domain"
)

// answerContextLimit caps the combined document context sent for answering.
const answerContextLimit = 24000

const answerSystemPrompt = "You are a knowledgeable assistant that answers questions " +
	"based only on the provided document context. Provide comprehensive and accurate answers."

// Answer generates a cited markdown answer to question from the given
// documents. Documents are numbered in order and cited as [Doc1], [Doc2], ...
func (c *Client) Answer(ctx context.Context, question string, docs []domain.ContextDocument) (string, error) {
	prompt := buildAnswerPrompt(question, docs)

	var answer string
	err := c.call(ctx, "answer", func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, sdk.ChatCompletionRequest{
			Model: c.chatModel,
			Messages: []sdk.ChatCompletionMessage{
				{Role: sdk.ChatMessageRoleSystem, Content: answerSystemPrompt},
				{Role: sdk.ChatMessageRoleUser, Content: prompt},
			},
			MaxTokens:   5000,
			Temperature: 0.3,
		})
		if err != nil {
			return mapError("answer", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("answer: empty response: %w", domain.ErrProviderUnavailable)
		}
		answer = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

func buildAnswerPrompt(question string, docs []domain.ContextDocument) string {
	var refs []string
	var parts []string
	for i, doc := range docs {
		num := i + 1
		title := doc.Title
		if title == "" {
			title = fmt.Sprintf("Document %d", num)
		}
		ref := fmt.Sprintf("Doc%d (%s)", num, title)
		if doc.ID != "" {
			ref += " - ID: " + doc.ID
		}
		refs = append(refs, ref)
		parts = append(parts, fmt.Sprintf("[Doc%d: %s]:\n%s", num, title, doc.Text))
	}

	body := truncateRunes(strings.Join(parts, "\n\n"), answerContextLimit)

	var b strings.Builder
	b.WriteString("You are a helpful assistant that answers questions based on the provided document context.\n\n")
	b.WriteString("IMPORTANT INSTRUCTIONS:\n")
	b.WriteString("- Always use Markdown formatting in your response\n")
	b.WriteString("- ALWAYS cite your sources using the exact document references provided below\n")
	b.WriteString("- When referencing a document, use the format: [Doc1], [Doc2], etc.\n")
	b.WriteString("- Include relevant quotes with citation: \"quoted text\" ([Doc1])\n")
	b.WriteString("- Structure your answer with headers (##), bullet points, and formatting as appropriate\n")
	b.WriteString("- If information is not available in the documents, clearly state this\n\n")
	b.WriteString("AVAILABLE DOCUMENT REFERENCES:\n")
	b.WriteString(strings.Join(refs, "\n"))
	b.WriteString("\n\nCONTEXT DOCUMENTS:\n")
	b.WriteString(body)
	b.WriteString("\n\nQUESTION: " + question + "\n\n")
	b.WriteString("Please provide a comprehensive answer in Markdown format with proper source citations.")
	return b.String()
}
