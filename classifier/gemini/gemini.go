// SPDX-License-Identifier: GPL-3.0-or-later
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/CrawX/go-gmail-triage/domain"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var ErrEmptyResponse = errors.New("model returned no candidates")

type Gemini struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Gemini, error) {
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("could not create gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// Generate runs prompt as a fresh single-turn chat.
func (g *Gemini) Generate(ctx context.Context, prompt string, params domain.SamplingParams) (*domain.Generation, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(params.Temperature)
	model.SetTopP(params.TopP)
	model.SetTopK(params.TopK)
	model.SetMaxOutputTokens(params.MaxOutputTokens)
	model.ResponseMIMEType = "text/plain"

	session := model.StartChat()
	resp, err := session.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("could not send prompt to %s: %w", g.model, err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	return &domain.Generation{
		Text:  text,
		Usage: usage(resp),
	}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

func usage(resp *genai.GenerateContentResponse) domain.TokenUsage {
	if resp.UsageMetadata == nil {
		return domain.TokenUsage{}
	}
	return domain.TokenUsage{
		PromptTokens:    resp.UsageMetadata.PromptTokenCount,
		CandidateTokens: resp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:     resp.UsageMetadata.TotalTokenCount,
	}
}
