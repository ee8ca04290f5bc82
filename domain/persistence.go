// SPDX-License-Identifier: GPL-3.0-or-later

//go:generate mockgen -destination=mocks/persistence.go -package=mocks . Journal
package domain

import "time"

type OutcomeStatus string

const (
	Processed = OutcomeStatus("processed")
	Ignored   = OutcomeStatus("ignored")
	Empty     = OutcomeStatus("empty")
	Failed    = OutcomeStatus("failed")
)

type Outcome struct {
	MessageID string
	ThreadID  string
	Sender    string
	Subject   string
	Status    OutcomeStatus
	// Stage is the last stage the message reached.
	Stage     string
	Label     TriageLabel
	Rationale string
	Error     error
}

type JournalEntry struct {
	Id          int64
	PassId      string
	MessageId   string
	ThreadId    string
	Sender      string
	Subject     string
	Status      OutcomeStatus
	Stage       string
	Label       string
	Rationale   string
	Error       string
	ProcessedAt time.Time
}

type Journal interface {
	Close() error
	SaveEntries(entries []JournalEntry) error
	RecentEntries(limit int) ([]*JournalEntry, error)
}
