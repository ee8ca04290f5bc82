// SPDX-License-Identifier: GPL-3.0-or-later

//go:generate mockgen -destination=mocks/mail.go -package=mocks . MailProvider
package domain

import (
	"context"
	"strings"
	"time"
)

const (
	LabelUnread = "UNREAD"
	LabelInbox  = "INBOX"
)

type Header struct {
	Name  string
	Value string
}

type Part struct {
	MimeType string
	// Data is base64url encoded, as delivered by the provider.
	Data  string
	Parts []Part
}

type Body struct {
	Data  string
	Parts []Part
}

type Message struct {
	ID       string
	ThreadID string
	Headers  []Header
	Body     Body
}

// Header returns the value of the first header matching name case-insensitively.
func (m *Message) Header(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

type Label struct {
	ID   string
	Name string
}

type SendResult struct {
	ID       string
	ThreadID string
}

type Query struct {
	UnreadOnly bool
	// After is ignored when zero.
	After      time.Time
	MaxResults int64
}

type MailProvider interface {
	ListMessages(ctx context.Context, query Query) ([]string, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	ModifyMessage(ctx context.Context, id string, addLabelIds, removeLabelIds []string) error
	ListLabels(ctx context.Context) ([]*Label, error)
	CreateLabel(ctx context.Context, name string) (*Label, error)
	SendMessage(ctx context.Context, raw []byte, threadID string) (*SendResult, error)
}
