// SPDX-License-Identifier: GPL-3.0-or-later
package classifier

import (
	"context"
	"errors"
	"os"
	"testing"
	"text/template"

	"github.com/CrawX/go-gmail-triage/domain"
	"github.com/CrawX/go-gmail-triage/domain/mocks"
	"github.com/CrawX/go-gmail-triage/log"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	log.InitLogging("error")
	os.Exit(m.Run())
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt("Can you share pricing?", "lead@corp.com", "me@example.com", "Jethiya")
	assert.NoError(t, err)

	assert.Contains(t, prompt, "choose from: Interested, Not Interested, More Information")
	assert.Contains(t, prompt, "suggest a demo call")
	assert.Contains(t, prompt, "provide relevant details")
	assert.Contains(t, prompt, "polite acknowledgment")
	assert.Contains(t, prompt, "From:\nlead@corp.com\n")
	assert.Contains(t, prompt, "To (me):\nme@example.com or Jethiya\n")
	assert.Contains(t, prompt, "Email content:\nCan you share pricing?\n")
	assert.Contains(t, prompt, `"suggested_response"`)

	withoutName, err := BuildPrompt("content", "a@b.c", "me@example.com", "")
	assert.NoError(t, err)
	assert.Contains(t, withoutName, "To (me):\nme@example.com\n")
}

func TestStripToJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		err      error
	}{
		{"plain", `{"a":1}`, `{"a":1}`, nil},
		{"fenced", "Sure! ```json\n{\"a\":{\"b\":2}}\n``` enjoy!", `{"a":{"b":2}}`, nil},
		{"noobject", "I cannot help with that.", "", ErrNoJSON},
		{"reversed", "} oops {", "", ErrNoJSON},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := StripToJSON(tc.input)
			assert.Equal(t, tc.err, err)
			assert.Equal(t, tc.expected, payload)
		})
	}
}

func TestParseDecision(t *testing.T) {
	decision, err := ParseDecision("Sure! ```json\n{\"label\":\"More Information\",\"analysis\":\"asks pricing\",\"suggested_response\":\"Our pricing is...\"}\n``` enjoy!")
	assert.NoError(t, err)
	assert.Equal(t, &domain.Decision{
		Label:          domain.MoreInformation,
		Rationale:      "asks pricing",
		SuggestedReply: "Our pricing is...",
	}, decision)

	decision, err = ParseDecision(`{"label":"interested","analysis":"","suggested_response":"Tuesday 3pm?"}`)
	assert.NoError(t, err)
	assert.Equal(t, domain.Interested, decision.Label)

	_, err = ParseDecision(`{"label":"Spam","analysis":"","suggested_response":"x"}`)
	assert.EqualError(t, err, `unknown label "Spam"`)

	_, err = ParseDecision(`{"label":"Interested","analysis":"","suggested_response":"  "}`)
	assert.Equal(t, ErrNoReplyText, err)

	_, err = ParseDecision(`{"label": Interested}`)
	assert.Error(t, err)

	_, err = ParseDecision("no json here")
	assert.Equal(t, ErrNoJSON, err)
}

func TestClassify(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	generator := mocks.NewMockGenerator(ctrl)
	params := domain.DefaultSamplingParams()
	c := NewClassifier(generator, params, "Jethiya")

	usage := domain.TokenUsage{PromptTokens: 100, CandidateTokens: 20, TotalTokens: 120}
	prompt, err := BuildPrompt("Tell me more", "lead@corp.com", "me@example.com", "Jethiya")
	assert.NoError(t, err)
	generator.EXPECT().
		Generate(gomock.Any(), gomock.Eq(prompt), gomock.Eq(params)).
		Return(&domain.Generation{
			Text:  `{"label":"More Information","analysis":"wants details","suggested_response":"Here are the details."}`,
			Usage: usage,
		}, nil)

	decision, err := c.Classify(context.Background(), "Tell me more", "lead@corp.com", "me@example.com")
	assert.NoError(t, err)
	assert.Equal(t, &domain.Decision{
		Label:          domain.MoreInformation,
		Rationale:      "wants details",
		SuggestedReply: "Here are the details.",
		Usage:          usage,
	}, decision)
}

func TestClassifyPromptFailure(t *testing.T) {
	original := promptTemplate
	promptTemplate = template.Must(template.New("prompt").Parse("{{ .Missing }}"))
	t.Cleanup(func() {
		promptTemplate = original
	})

	_, err := BuildPrompt("content", "a@b.c", "me@example.com", "")
	assert.Error(t, err)

	ctrl := gomock.NewController(t)
	generator := mocks.NewMockGenerator(ctrl)
	c := NewClassifier(generator, domain.DefaultSamplingParams(), "")

	_, err = c.Classify(context.Background(), "content", "a@b.c", "me@example.com")
	var classificationErr *domain.ClassificationError
	assert.ErrorAs(t, err, &classificationErr)
}

func TestClassifyErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	generator := mocks.NewMockGenerator(ctrl)
	c := NewClassifier(generator, domain.DefaultSamplingParams(), "")

	apiErr := errors.New("quota exceeded")
	generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, apiErr)
	_, err := c.Classify(context.Background(), "content", "a@b.c", "me@example.com")
	var classificationErr *domain.ClassificationError
	assert.ErrorAs(t, err, &classificationErr)
	assert.ErrorIs(t, err, apiErr)

	generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Return(&domain.Generation{Text: "I'd rather not."}, nil)
	_, err = c.Classify(context.Background(), "content", "a@b.c", "me@example.com")
	assert.ErrorAs(t, err, &classificationErr)
	assert.ErrorIs(t, err, ErrNoJSON)
}
