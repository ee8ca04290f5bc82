// SPDX-License-Identifier: GPL-3.0-or-later
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/CrawX/go-gmail-triage/domain"
	"github.com/CrawX/go-gmail-triage/log"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	user = "me"

	// gmail only accepts these literals
	labelListVisibility   = "labelShow"
	messageListVisibility = "show"

	queryTimeFormat = "2006-01-02T15:04:05.000Z"
)

var (
	ErrNoPayload = errors.New("message has no payload")
	ErrNoId      = errors.New("response has no id")
)

type Gmail struct {
	srv *gmail.Service

	l *logrus.Logger
}

func NewGmail(ctx context.Context, opts ...option.ClientOption) (*Gmail, error) {
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create gmail service: %w", err)
	}

	return &Gmail{
		srv: srv,
		l:   log.Logger(log.LOG_GMAIL),
	}, nil
}

// BuildQuery renders q in gmail search syntax.
func BuildQuery(q domain.Query) string {
	var terms []string
	if q.UnreadOnly {
		terms = append(terms, "is:unread")
	}
	if !q.After.IsZero() {
		terms = append(terms, "after:"+q.After.UTC().Format(queryTimeFormat))
	}
	return strings.Join(terms, " ")
}

func (g *Gmail) ListMessages(ctx context.Context, query domain.Query) ([]string, error) {
	q := BuildQuery(query)
	call := g.srv.Users.Messages.List(user).Q(q).Context(ctx)
	if query.MaxResults > 0 {
		call = call.MaxResults(query.MaxResults)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, &domain.ProviderError{Op: "list", Err: err}
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if len(m.Id) == 0 {
			return nil, &domain.ProviderError{Op: "list", Err: ErrNoId}
		}
		ids = append(ids, m.Id)
	}

	g.l.WithFields(logrus.Fields{"query": q, "count": len(ids)}).Debug("Listed messages")
	return ids, nil
}

func (g *Gmail) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := g.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, &domain.ProviderError{Op: "get", Err: err}
	}

	m, err := convertMessage(msg)
	if err != nil {
		return nil, &domain.ProviderError{Op: "get", Err: fmt.Errorf("invalid message %s: %w", id, err)}
	}
	return m, nil
}

func convertMessage(msg *gmail.Message) (*domain.Message, error) {
	if len(msg.Id) == 0 {
		return nil, ErrNoId
	}
	if msg.Payload == nil {
		return nil, ErrNoPayload
	}

	m := &domain.Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Headers:  make([]domain.Header, 0, len(msg.Payload.Headers)),
	}
	for _, h := range msg.Payload.Headers {
		m.Headers = append(m.Headers, domain.Header{Name: h.Name, Value: h.Value})
	}

	if len(msg.Payload.Parts) > 0 {
		m.Body.Parts = convertParts(msg.Payload.Parts)
	} else if msg.Payload.Body != nil {
		m.Body.Data = msg.Payload.Body.Data
	}

	return m, nil
}

func convertParts(parts []*gmail.MessagePart) []domain.Part {
	converted := make([]domain.Part, 0, len(parts))
	for _, p := range parts {
		if p == nil {
			continue
		}
		part := domain.Part{MimeType: p.MimeType}
		if p.Body != nil {
			part.Data = p.Body.Data
		}
		if len(p.Parts) > 0 {
			part.Parts = convertParts(p.Parts)
		}
		converted = append(converted, part)
	}
	return converted
}

func (g *Gmail) ModifyMessage(ctx context.Context, id string, addLabelIds, removeLabelIds []string) error {
	_, err := g.srv.Users.Messages.Modify(user, id, &gmail.ModifyMessageRequest{
		AddLabelIds:    addLabelIds,
		RemoveLabelIds: removeLabelIds,
	}).Context(ctx).Do()
	if err != nil {
		return &domain.ProviderError{Op: "modify", Err: err}
	}
	return nil
}

func (g *Gmail) ListLabels(ctx context.Context) ([]*domain.Label, error) {
	resp, err := g.srv.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return nil, &domain.ProviderError{Op: "list labels", Err: err}
	}

	labels := make([]*domain.Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, &domain.Label{ID: l.Id, Name: l.Name})
	}
	return labels, nil
}

func (g *Gmail) CreateLabel(ctx context.Context, name string) (*domain.Label, error) {
	label, err := g.srv.Users.Labels.Create(user, &gmail.Label{
		Name:                  name,
		LabelListVisibility:   labelListVisibility,
		MessageListVisibility: messageListVisibility,
	}).Context(ctx).Do()
	if err != nil {
		return nil, &domain.ProviderError{Op: "create label", Err: err}
	}
	if len(label.Id) == 0 {
		return nil, &domain.ProviderError{Op: "create label", Err: ErrNoId}
	}

	g.l.WithFields(logrus.Fields{"name": name, "id": label.Id}).Info("Created label")
	return &domain.Label{ID: label.Id, Name: label.Name}, nil
}

func (g *Gmail) SendMessage(ctx context.Context, raw []byte, threadID string) (*domain.SendResult, error) {
	sent, err := g.srv.Users.Messages.Send(user, &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: threadID,
	}).Context(ctx).Do()
	if err != nil {
		return nil, &domain.ProviderError{Op: "send", Err: err}
	}
	if len(sent.Id) == 0 {
		return nil, &domain.ProviderError{Op: "send", Err: ErrNoId}
	}

	return &domain.SendResult{ID: sent.Id, ThreadID: sent.ThreadId}, nil
}

