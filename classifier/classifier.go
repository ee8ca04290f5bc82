// SPDX-License-Identifier: GPL-3.0-or-later
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/CrawX/go-gmail-triage/domain"
	"github.com/CrawX/go-gmail-triage/log"

	"github.com/sirupsen/logrus"
)

var promptTemplate = template.Must(template.New("prompt").Parse(`
Analyze the following email content and provide:
1. A suggested label (choose from: {{ .Labels }})
2. A draft response (keep it small) based on the following rules:
- If they show interest, suggest a demo call with specific time slots around afternoon
- If they need more information, provide relevant details
- If not interested, send a polite acknowledgment

From:
{{ .From }}
To (me):
{{ .To }}
Email content:
{{ .Content }}

Respond in JSON format:
{
"label": "chosen_label",
"analysis": "brief explanation of why this label was chosen",
"suggested_response": "complete response text"
}
`))

type promptData struct {
	Labels  string
	From    string
	To      string
	Content string
}

// BuildPrompt renders the single-turn instruction for one email.
func BuildPrompt(content, from, to, senderName string) (string, error) {
	labels := make([]string, len(domain.TriageLabels))
	for i, l := range domain.TriageLabels {
		labels[i] = string(l)
	}

	recipient := to
	if len(strings.TrimSpace(senderName)) > 0 {
		recipient = fmt.Sprintf("%s or %s", to, senderName)
	}

	var b strings.Builder
	err := promptTemplate.Execute(&b, promptData{
		Labels:  strings.Join(labels, ", "),
		From:    from,
		To:      recipient,
		Content: content,
	})
	if err != nil {
		return "", fmt.Errorf("could not render prompt: %w", err)
	}
	return b.String(), nil
}

var (
	ErrNoJSON      = errors.New("response contains no JSON object")
	ErrNoReplyText = errors.New("response has an empty suggested_response")
)

// StripToJSON cuts everything before the first '{' and after the last '}'.
func StripToJSON(text string) (string, error) {
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first < 0 || last < first {
		return "", ErrNoJSON
	}
	return text[first : last+1], nil
}

type analysis struct {
	Label             string `json:"label"`
	Analysis          string `json:"analysis"`
	SuggestedResponse string `json:"suggested_response"`
}

// ParseDecision extracts the decision from a raw model response, tolerating surrounding prose and
// code fences.
func ParseDecision(text string) (*domain.Decision, error) {
	payload, err := StripToJSON(text)
	if err != nil {
		return nil, err
	}

	a := &analysis{}
	err = json.Unmarshal([]byte(payload), a)
	if err != nil {
		return nil, fmt.Errorf("could not parse response: %w", err)
	}

	label, ok := domain.ParseTriageLabel(a.Label)
	if !ok {
		return nil, fmt.Errorf("unknown label %q", a.Label)
	}

	if len(strings.TrimSpace(a.SuggestedResponse)) == 0 {
		return nil, ErrNoReplyText
	}

	return &domain.Decision{
		Label:          label,
		Rationale:      a.Analysis,
		SuggestedReply: a.SuggestedResponse,
	}, nil
}

type Classifier struct {
	generator  domain.Generator
	params     domain.SamplingParams
	senderName string

	l *logrus.Logger
}

func NewClassifier(generator domain.Generator, params domain.SamplingParams, senderName string) *Classifier {
	return &Classifier{
		generator:  generator,
		params:     params,
		senderName: senderName,
		l:          log.Logger(log.LOG_CLASSIFIER),
	}
}

func (c *Classifier) Classify(ctx context.Context, content, from, to string) (*domain.Decision, error) {
	prompt, err := BuildPrompt(content, from, to, c.senderName)
	if err != nil {
		return nil, &domain.ClassificationError{Err: err}
	}

	generation, err := c.generator.Generate(ctx, prompt, c.params)
	if err != nil {
		return nil, &domain.ClassificationError{Err: fmt.Errorf("could not generate analysis: %w", err)}
	}

	c.l.WithFields(logrus.Fields{
		"promptTokens":    generation.Usage.PromptTokens,
		"candidateTokens": generation.Usage.CandidateTokens,
		"totalTokens":     generation.Usage.TotalTokens,
	}).Debug("Analyzed email")

	decision, err := ParseDecision(generation.Text)
	if err != nil {
		c.l.WithFields(logrus.Fields{"response": generation.Text, "error": err}).Debug("Unparsable analysis")
		return nil, &domain.ClassificationError{Err: err}
	}
	decision.Usage = generation.Usage

	return decision, nil
}
