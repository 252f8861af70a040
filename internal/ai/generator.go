package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/schema"

	"github.com/gobot/internal/retry"
)

const (
	stopReasonEndTurn   = "end_turn"
	stopReasonMaxTokens = "max_tokens"

	// Hard cap on the accumulated response across continuation rounds.
	maxOutputBytes = 1 << 20
)

// ProviderError marks a failure talking to the model provider, as opposed to
// a failure understanding what it returned.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("ai provider: %v", e.Err) }
func (e *ProviderError) Unwrap() error { return e.Err }

// Generator produces ticket clarifications and code implementations from a
// chat model.
type Generator struct {
	model llms.Model
}

// NewGenerator connects to Anthropic with the given key and model name.
func NewGenerator(apiKey, modelName string) (*Generator, error) {
	model, err := anthropic.New(
		anthropic.WithToken(apiKey),
		anthropic.WithModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create anthropic model: %w", err)
	}
	return &Generator{model: model}, nil
}

// NewGeneratorWithModel wraps an existing model. Used by tests and for
// alternate providers.
func NewGeneratorWithModel(model llms.Model) *Generator {
	return &Generator{model: model}
}

// generateWithContinuation runs the prompt and, while the model stops on its
// token limit, feeds the partial response back with continueMsg and asks for
// the rest. Rounds are capped; an unknown stop reason ends the loop with
// whatever accumulated.
func (g *Generator) generateWithContinuation(ctx context.Context, prompt string, maxTokens, maxRounds int, continueMsg string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	var full strings.Builder
	for round := 0; round < maxRounds; round++ {
		var resp *llms.ContentResponse
		err := retry.Do(ctx, retry.LLMConfig(), func() error {
			var callErr error
			resp, callErr = g.model.GenerateContent(ctx, messages, llms.WithMaxTokens(maxTokens))
			return callErr
		})
		if err != nil {
			return "", &ProviderError{Err: err}
		}
		if len(resp.Choices) == 0 {
			return "", &ProviderError{Err: fmt.Errorf("empty response")}
		}

		choice := resp.Choices[0]
		full.WriteString(choice.Content)

		log.Debug().
			Int("round", round+1).
			Int("chunk_bytes", len(choice.Content)).
			Str("stop_reason", choice.StopReason).
			Msg("model response chunk")

		if choice.StopReason != stopReasonMaxTokens {
			if choice.StopReason != stopReasonEndTurn {
				log.Warn().Str("stop_reason", choice.StopReason).Msg("unexpected stop reason")
			}
			return full.String(), nil
		}

		if full.Len() > maxOutputBytes {
			log.Warn().Int("bytes", full.Len()).Msg("response exceeds output cap, truncating")
			return full.String(), nil
		}

		messages = append(messages,
			llms.TextParts(schema.ChatMessageTypeAI, choice.Content),
			llms.TextParts(schema.ChatMessageTypeHuman, continueMsg),
		)
	}

	log.Warn().Int("rounds", maxRounds).Msg("reached continuation round limit")
	return full.String(), nil
}
