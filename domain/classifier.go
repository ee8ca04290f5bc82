// SPDX-License-Identifier: GPL-3.0-or-later

//go:generate mockgen -destination=mocks/classifier.go -package=mocks . Classifier,Generator
package domain

import (
	"context"
	"strings"
)

type TriageLabel string

const (
	Interested      = TriageLabel("Interested")
	NotInterested   = TriageLabel("Not Interested")
	MoreInformation = TriageLabel("More Information")
)

var TriageLabels = []TriageLabel{Interested, NotInterested, MoreInformation}

// ParseTriageLabel maps s case-insensitively onto one of the TriageLabels.
func ParseTriageLabel(s string) (TriageLabel, bool) {
	s = strings.TrimSpace(s)
	for _, l := range TriageLabels {
		if strings.EqualFold(string(l), s) {
			return l, true
		}
	}
	return "", false
}

type TokenUsage struct {
	PromptTokens    int32
	CandidateTokens int32
	TotalTokens     int32
}

type Decision struct {
	Label          TriageLabel
	Rationale      string
	SuggestedReply string
	Usage          TokenUsage
}

type SamplingParams struct {
	Temperature     float32
	TopP            float32
	TopK            int32
	MaxOutputTokens int32
}

func DefaultSamplingParams() SamplingParams {
	return SamplingParams{
		Temperature:     0.7,
		TopP:            0.95,
		TopK:            64,
		MaxOutputTokens: 8192,
	}
}

type Generation struct {
	Text  string
	Usage TokenUsage
}

// Generator submits a single-turn prompt to a generative-text service.
type Generator interface {
	Generate(ctx context.Context, prompt string, params SamplingParams) (*Generation, error)
}

type Classifier interface {
	Classify(ctx context.Context, content, from, to string) (*Decision, error)
}
