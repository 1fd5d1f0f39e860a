package openai

import (
	"context"
	"fmt"

	sdk "github.com/sashabaranov/go-openai"

	"github.com/dockeep/dockeep/internal/domain"
	"github.com/dockeep/dockeep/internal/metrics"
)

// Embed returns the embedding vector for the given text along with token
// usage.
func (c *Client) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	req := sdk.EmbeddingRequest{
		Input:          []string{text},
		Model:          c.embeddingModel,
		EncodingFormat: sdk.EmbeddingEncodingFormatFloat,
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	var result domain.EmbeddingResult
	err := c.call(ctx, "embed", func(ctx context.Context) error {
		resp, err := c.api.CreateEmbeddings(ctx, req)
		if err != nil {
			return mapError("embed", err)
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("embed: empty response: %w", domain.ErrProviderUnavailable)
		}
		result = domain.EmbeddingResult{
			Embedding:    resp.Data[0].Embedding,
			PromptTokens: resp.Usage.PromptTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
		return nil
	})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	metrics.AITokensTotal.WithLabelValues("embed").Add(float64(result.TotalTokens))
	return result, nil
}
