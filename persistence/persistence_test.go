// SPDX-License-Identifier: GPL-3.0-or-later
package persistence

import (
	"os"
	"testing"
	"time"

	"github.com/CrawX/go-gmail-triage/domain"
	"github.com/CrawX/go-gmail-triage/log"

	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	log.InitLogging("error")
	os.Exit(m.Run())
}

func newTestPersistence(t *testing.T) *Persistence {
	p, err := NewPersistence(":memory:")
	assert.NoError(t, err)
	t.Cleanup(func() {
		_ = p.Close()
	})
	return p
}

func TestJournal(t *testing.T) {
	p := newTestPersistence(t)

	entries, err := p.RecentEntries(10)
	assert.NoError(t, err)
	assert.Empty(t, entries)

	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	err = p.SaveEntries([]domain.JournalEntry{
		{
			PassId:      "pass-1",
			MessageId:   "m1",
			ThreadId:    "t1",
			Sender:      "lead@corp.com",
			Subject:     "Pricing",
			Status:      domain.Processed,
			Stage:       "replied",
			Label:       string(domain.MoreInformation),
			Rationale:   "asks for pricing",
			ProcessedAt: first,
		},
		{
			PassId:      "pass-1",
			MessageId:   "m2",
			ThreadId:    "t2",
			Sender:      "noreply@duolingo.com",
			Subject:     "Streak",
			Status:      domain.Ignored,
			Stage:       "filtered",
			ProcessedAt: first.Add(time.Second),
		},
	})
	assert.NoError(t, err)

	err = p.SaveEntries([]domain.JournalEntry{
		{
			PassId:      "pass-2",
			MessageId:   "m3",
			Sender:      "x@corp.com",
			Status:      domain.Failed,
			Stage:       "classified",
			Error:       "classification failed: quota",
			ProcessedAt: first.Add(time.Hour),
		},
	})
	assert.NoError(t, err)

	entries, err = p.RecentEntries(10)
	assert.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, "m3", entries[0].MessageId)
	assert.Equal(t, domain.Failed, entries[0].Status)
	assert.Equal(t, "classification failed: quota", entries[0].Error)
	assert.Equal(t, "m2", entries[1].MessageId)
	assert.Equal(t, "m1", entries[2].MessageId)
	assert.Equal(t, "More Information", entries[2].Label)
	assert.Equal(t, "asks for pricing", entries[2].Rationale)
	assert.True(t, first.Equal(entries[2].ProcessedAt))

	entries, err = p.RecentEntries(1)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "pass-2", entries[0].PassId)
}

func TestSaveNoEntries(t *testing.T) {
	p := newTestPersistence(t)
	assert.NoError(t, p.SaveEntries(nil))
}
