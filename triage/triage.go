// SPDX-License-Identifier: GPL-3.0-or-later
package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CrawX/go-gmail-triage/domain"
	"github.com/CrawX/go-gmail-triage/log"
	"github.com/CrawX/go-gmail-triage/mail"
	"github.com/CrawX/go-gmail-triage/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Stages a message passes through, in order.
const (
	StageListed     = "listed"
	StageFetched    = "fetched"
	StageFiltered   = "filtered"
	StageExtracted  = "extracted"
	StageClassified = "classified"
	StageLabeled    = "labeled"
	StageReplied    = "replied"
)

var ErrNoLabelId = errors.New("provider returned a label without id")

type PassReport struct {
	PassId   string
	Start    time.Time
	Duration time.Duration
	Listed   int
	// Outcomes are in listing order.
	Outcomes []domain.Outcome
}

func (r *PassReport) Count(status domain.OutcomeStatus) int {
	count := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			count++
		}
	}
	return count
}

type Triage struct {
	provider   domain.MailProvider
	classifier domain.Classifier
	ignoreList domain.IgnoreList
	checkpoint domain.Checkpoint

	configuration *configuration

	l *logrus.Logger
}

func NewTriage(provider domain.MailProvider, classifier domain.Classifier, ignoreList domain.IgnoreList, checkpoint domain.Checkpoint, configFunc ...ConfigFunc) (*Triage, error) {
	config := defaultConfiguration()
	for _, f := range configFunc {
		err := f(config)
		if err != nil {
			return nil, fmt.Errorf("error applying configuration: %w", err)
		}
	}

	return &Triage{
		provider:      provider,
		classifier:    classifier,
		ignoreList:    ignoreList,
		checkpoint:    checkpoint,
		configuration: config,
		l:             log.Logger(log.LOG_TRIAGE),
	}, nil
}

// RunPass lists unread messages and takes each through the stages. Only a listing failure fails
// the pass, per-message failures end up in the report.
func (t *Triage) RunPass(ctx context.Context) (*PassReport, error) {
	report := &PassReport{
		PassId: uuid.NewString(),
		Start:  t.configuration.Now(),
	}
	passLogger := t.l.WithField("pass", report.PassId)

	query := domain.Query{
		UnreadOnly: true,
		MaxResults: t.configuration.MaxMessagesPerPass,
	}
	if t.configuration.Incremental {
		query.After = t.checkpoint.Load()
	}

	ids, err := t.provider.ListMessages(ctx, query)
	if err != nil {
		metrics.PassesTotal.WithLabelValues(metrics.PassFailed).Inc()
		return nil, fmt.Errorf("could not list messages: %w", err)
	}
	report.Listed = len(ids)
	passLogger.WithFields(logrus.Fields{"messages": len(ids), "incremental": t.configuration.Incremental, "dryrun": t.configuration.DryRun}).Info("Listed unread messages")

	labels := newLabelCache(t.provider)
	for _, id := range ids {
		outcome := t.processMessage(ctx, id, labels)
		report.Outcomes = append(report.Outcomes, outcome)
		metrics.MessagesTotal.WithLabelValues(string(outcome.Status), outcome.Stage).Inc()
	}

	if t.configuration.Incremental {
		err = t.checkpoint.Advance(t.configuration.Now())
		if err != nil {
			passLogger.WithField("error", err).Error("Could not advance checkpoint")
		}
	}

	report.Duration = t.configuration.Now().Sub(report.Start)
	t.journal(report)

	metrics.PassesTotal.WithLabelValues(metrics.PassOk).Inc()
	metrics.PassDuration.Observe(report.Duration.Seconds())
	metrics.LastPassTimestamp.SetToCurrentTime()

	passLogger.WithFields(logrus.Fields{
		"duration":  report.Duration,
		"processed": report.Count(domain.Processed),
		"ignored":   report.Count(domain.Ignored),
		"empty":     report.Count(domain.Empty),
		"failed":    report.Count(domain.Failed),
	}).Info("Finished pass")

	return report, nil
}

func (t *Triage) processMessage(ctx context.Context, id string, labels *labelCache) domain.Outcome {
	outcome := domain.Outcome{MessageID: id, Stage: StageListed}

	fail := func(err error) domain.Outcome {
		outcome.Status = domain.Failed
		outcome.Error = err
		t.l.WithFields(logrus.Fields{
			"id":      id,
			"sender":  outcome.Sender,
			"subject": mail.ShortSubject(outcome.Subject),
			"stage":   outcome.Stage,
			"error":   err,
		}).Error("Could not process message")
		return outcome
	}

	msg, err := t.provider.GetMessage(ctx, id)
	if err != nil {
		return fail(fmt.Errorf("could not fetch message: %w", err))
	}
	outcome.Stage = StageFetched
	outcome.ThreadID = msg.ThreadID
	outcome.Sender = msg.Header("From")
	outcome.Subject = mail.DecodeHeader(msg.Header("Subject"))

	msgLogger := t.l.WithFields(logrus.Fields{"id": id, "sender": outcome.Sender, "subject": mail.ShortSubject(outcome.Subject)})

	outcome.Stage = StageFiltered
	if t.ignoreList.ShouldIgnore(outcome.Sender) {
		if t.configuration.DryRun {
			msgLogger.Info("Not archiving ignored message due to dry-run")
		} else {
			err = t.provider.ModifyMessage(ctx, id, nil, []string{domain.LabelUnread, domain.LabelInbox})
			if err != nil {
				return fail(fmt.Errorf("could not archive ignored message: %w", err))
			}
			msgLogger.Info("Archived message from ignored sender")
		}
		outcome.Status = domain.Ignored
		return outcome
	}

	content, err := mail.ExtractText(msg, t.configuration.HTMLFallback)
	if err != nil {
		return fail(fmt.Errorf("could not extract content: %w", err))
	}
	outcome.Stage = StageExtracted
	if len(strings.TrimSpace(content)) == 0 {
		msgLogger.Info("Message has no text content, skipping")
		outcome.Status = domain.Empty
		return outcome
	}

	decision, err := t.classifier.Classify(ctx, content, outcome.Sender, msg.Header("To"))
	if err != nil {
		return fail(err)
	}
	outcome.Stage = StageClassified
	outcome.Label = decision.Label
	outcome.Rationale = decision.Rationale
	metrics.DecisionsTotal.WithLabelValues(string(decision.Label)).Inc()
	metrics.TokensTotal.WithLabelValues("prompt").Add(float64(decision.Usage.PromptTokens))
	metrics.TokensTotal.WithLabelValues("candidate").Add(float64(decision.Usage.CandidateTokens))
	msgLogger.WithFields(logrus.Fields{"label": decision.Label, "rationale": decision.Rationale}).Info("Classified message")

	if t.configuration.DryRun {
		msgLogger.WithField("reply", decision.SuggestedReply).Info("Not labeling or replying due to dry-run")
		outcome.Status = domain.Processed
		return outcome
	}

	labelId, err := labels.resolve(ctx, string(decision.Label))
	if err != nil {
		return fail(err)
	}
	err = t.provider.ModifyMessage(ctx, id, []string{labelId}, []string{domain.LabelUnread})
	if err != nil {
		return fail(fmt.Errorf("could not label message: %w", err))
	}
	outcome.Stage = StageLabeled

	raw, err := mail.BuildReply(msg, decision.SuggestedReply, t.configuration.ReplyFrom, t.configuration.Now())
	if err != nil {
		return fail(fmt.Errorf("could not build reply: %w", err))
	}
	sent, err := t.provider.SendMessage(ctx, raw, msg.ThreadID)
	if err != nil {
		return fail(fmt.Errorf("could not send reply: %w", err))
	}
	outcome.Stage = StageReplied
	outcome.Status = domain.Processed
	msgLogger.WithFields(logrus.Fields{"label": decision.Label, "reply": sent.ID}).Info("Labeled and replied")

	return outcome
}

func (t *Triage) journal(report *PassReport) {
	if t.configuration.Journal == nil || len(report.Outcomes) == 0 {
		return
	}

	processedAt := report.Start.Add(report.Duration)
	entries := make([]domain.JournalEntry, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		entry := domain.JournalEntry{
			PassId:      report.PassId,
			MessageId:   o.MessageID,
			ThreadId:    o.ThreadID,
			Sender:      o.Sender,
			Subject:     o.Subject,
			Status:      o.Status,
			Stage:       o.Stage,
			Label:       string(o.Label),
			Rationale:   o.Rationale,
			ProcessedAt: processedAt,
		}
		if o.Error != nil {
			entry.Error = o.Error.Error()
		}
		entries = append(entries, entry)
	}

	err := t.configuration.Journal.SaveEntries(entries)
	if err != nil {
		t.l.WithFields(logrus.Fields{"pass": report.PassId, "error": err}).Warn("Could not save journal entries")
	}
}

// labelCache resolves label names to ids for the duration of one pass.
type labelCache struct {
	provider domain.MailProvider
	ids      map[string]string
}

func newLabelCache(provider domain.MailProvider) *labelCache {
	return &labelCache{provider: provider}
}

func (c *labelCache) resolve(ctx context.Context, name string) (string, error) {
	if c.ids == nil {
		labels, err := c.provider.ListLabels(ctx)
		if err != nil {
			return "", fmt.Errorf("could not list labels: %w", err)
		}

		c.ids = map[string]string{}
		for _, l := range labels {
			c.ids[l.Name] = l.ID
		}
	}

	if id, ok := c.ids[name]; ok {
		return id, nil
	}

	created, err := c.provider.CreateLabel(ctx, name)
	if err != nil {
		return "", fmt.Errorf("could not create label %q: %w", name, err)
	}
	if len(created.ID) == 0 {
		return "", ErrNoLabelId
	}

	c.ids[name] = created.ID
	return created.ID, nil
}
