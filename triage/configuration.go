// SPDX-License-Identifier: GPL-3.0-or-later
package triage

import (
	"fmt"
	"strings"
	"time"

	"github.com/CrawX/go-gmail-triage/domain"

	gomail "github.com/emersion/go-message/mail"
)

const DefaultMaxMessagesPerPass = 2

type ConfigFunc func(c *configuration) error

func MaxMessagesPerPass(n int64) ConfigFunc {
	return func(c *configuration) error {
		if n <= 0 {
			return fmt.Errorf("MaxMessagesPerPass must be positive")
		}

		c.MaxMessagesPerPass = n
		return nil
	}
}

func Incremental() ConfigFunc {
	return func(c *configuration) error {
		c.Incremental = true
		return nil
	}
}

func DryRun() ConfigFunc {
	return func(c *configuration) error {
		c.DryRun = true
		return nil
	}
}

func HTMLFallback() ConfigFunc {
	return func(c *configuration) error {
		c.HTMLFallback = true
		return nil
	}
}

func WithJournal(journal domain.Journal) ConfigFunc {
	return func(c *configuration) error {
		if journal == nil {
			return fmt.Errorf("Journal cannot be null")
		}

		c.Journal = journal
		return nil
	}
}

func WithClock(now func() time.Time) ConfigFunc {
	return func(c *configuration) error {
		if now == nil {
			return fmt.Errorf("Clock cannot be null")
		}

		c.Now = now
		return nil
	}
}

// ReplyFrom sets the From header of replies. Without it the provider decides.
func ReplyFrom(name, address string) ConfigFunc {
	return func(c *configuration) error {
		if len(strings.TrimSpace(address)) == 0 {
			return fmt.Errorf("ReplyFrom address cannot be null")
		}

		c.ReplyFrom = &gomail.Address{Name: name, Address: address}
		return nil
	}
}

type configuration struct {
	MaxMessagesPerPass int64
	Incremental        bool
	DryRun             bool
	HTMLFallback       bool

	Journal   domain.Journal
	Now       func() time.Time
	ReplyFrom *gomail.Address
}

func defaultConfiguration() *configuration {
	return &configuration{
		MaxMessagesPerPass: DefaultMaxMessagesPerPass,
		Now:                time.Now,
	}
}
