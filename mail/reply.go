// SPDX-License-Identifier: GPL-3.0-or-later
package mail

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/CrawX/go-gmail-triage/domain"

	gomail "github.com/emersion/go-message/mail"
)

const replyPrefix = "Re:"

// ReplySubject prefixes subject with "Re: " unless it already carries a reply prefix.
func ReplySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if len(trimmed) >= len(replyPrefix) && strings.EqualFold(trimmed[:len(replyPrefix)], replyPrefix) {
		return subject
	}
	return replyPrefix + " " + subject
}

// BuildReply renders an RFC 822 plain text reply to original, threaded through the In-Reply-To and
// References headers. from may be nil, the provider then fills in the sender.
func BuildReply(original *domain.Message, text string, from *gomail.Address, date time.Time) ([]byte, error) {
	to := original.Header("From")
	if len(strings.TrimSpace(to)) == 0 {
		return nil, fmt.Errorf("original message has no From header")
	}

	var h gomail.Header
	h.SetDate(date)
	if from != nil {
		h.SetAddressList("From", []*gomail.Address{from})
	}
	recipients, err := gomail.ParseAddressList(to)
	if err == nil && len(recipients) > 0 {
		h.SetAddressList("To", recipients)
	} else {
		h.Set("To", to)
	}
	h.SetSubject(ReplySubject(DecodeHeader(original.Header("Subject"))))

	messageId := strings.TrimSpace(original.Header("Message-ID"))
	if len(messageId) > 0 {
		h.Set("In-Reply-To", messageId)
		h.Set("References", messageId)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "UTF-8"})
	err = h.GenerateMessageID()
	if err != nil {
		return nil, fmt.Errorf("could not generate message id: %w", err)
	}

	var b bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&b, h)
	if err != nil {
		return nil, fmt.Errorf("could not create reply writer: %w", err)
	}

	_, err = io.WriteString(w, text)
	if err != nil {
		return nil, fmt.Errorf("could not write reply body: %w", err)
	}

	err = w.Close()
	if err != nil {
		return nil, fmt.Errorf("could not finish reply: %w", err)
	}

	return b.Bytes(), nil
}
