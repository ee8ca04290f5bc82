// SPDX-License-Identifier: GPL-3.0-or-later
package persistence

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/CrawX/go-gmail-triage/domain"
	"github.com/CrawX/go-gmail-triage/log"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
)

//go:embed sql/*.sql
var migrations embed.FS

type Persistence struct {
	db *sqlx.DB
	l  *logrus.Logger
}

func NewPersistence(datasource string) (*Persistence, error) {
	db, err := sqlx.Connect("sqlite3", datasource)
	if err != nil {
		return nil, fmt.Errorf("could not open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := log.Logger(log.LOG_PERSISTENCE)
	l.WithField("file", datasource).Info("Connected")

	migrationSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations,
		Root:       "sql",
	}

	_, err = db.Exec(`PRAGMA journal_mode=WAL`)
	if err != nil {
		return nil, fmt.Errorf("could not set journal mode: %w", err)
	}
	_, err = db.Exec(`PRAGMA synchronous=normal`)
	if err != nil {
		return nil, fmt.Errorf("could not set synchronous mode: %w", err)
	}

	appliedMigrations, err := migrate.Exec(db.DB, "sqlite3", migrationSource, migrate.Up)
	if err != nil {
		return nil, fmt.Errorf("could not migrate to newest version: %w", err)
	}

	l.WithField("migrations", appliedMigrations).Debug("Executed migrations")

	return &Persistence{
		db: db,
		l:  l,
	}, nil
}

func (p *Persistence) Close() error {
	err := p.db.Close()
	if err != nil {
		return fmt.Errorf("could not close db: %w", err)
	}
	p.l.Info("Disconnected")
	return nil
}

type dbEntry struct {
	Id          int64
	PassId      string
	MessageId   string
	ThreadId    string
	Sender      string
	Subject     string
	Status      string
	Stage       string
	Label       string
	Rationale   string
	Error       string
	ProcessedAt time.Time
}

// SaveEntries stores all entries of one pass or none of them.
func (p *Persistence) SaveEntries(entries []domain.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := p.db.BeginTxx(context.TODO(), nil)
	if err != nil {
		return fmt.Errorf("could not start transaction: %w", err)
	}

	stmt, err := tx.PrepareNamed(
		`INSERT INTO journal(passid, messageid, threadid, sender, subject, status, stage, label, rationale, error, processedat)
		VALUES(:passid, :messageid, :threadid, :sender, :subject, :status, :stage, :label, :rationale, :error, :processedat)`,
	)
	if err != nil {
		return txEnd(tx, fmt.Errorf("could not prepare statement: %w", err))
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.Exec(&dbEntry{
			PassId:      e.PassId,
			MessageId:   e.MessageId,
			ThreadId:    e.ThreadId,
			Sender:      e.Sender,
			Subject:     e.Subject,
			Status:      string(e.Status),
			Stage:       e.Stage,
			Label:       e.Label,
			Rationale:   e.Rationale,
			Error:       e.Error,
			ProcessedAt: e.ProcessedAt.UTC(),
		})
		if err != nil {
			return txEnd(tx, fmt.Errorf("could not save entry for message %s: %w", e.MessageId, err))
		}
	}

	err = txEnd(tx, nil)
	if err != nil {
		return err
	}

	p.l.WithField("count", len(entries)).Debug("Persisted journal entries")
	return nil
}

// RecentEntries returns up to limit entries, newest first.
func (p *Persistence) RecentEntries(limit int) ([]*domain.JournalEntry, error) {
	dbEntries := []dbEntry{}

	err := p.db.Select(
		&dbEntries,
		`SELECT id, passid, messageid, threadid, sender, subject, status, stage, label, rationale, error, processedat
		FROM journal ORDER BY processedat DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}

	entries := []*domain.JournalEntry{}
	for _, e := range dbEntries {
		entries = append(
			entries,
			&domain.JournalEntry{
				Id:          e.Id,
				PassId:      e.PassId,
				MessageId:   e.MessageId,
				ThreadId:    e.ThreadId,
				Sender:      e.Sender,
				Subject:     e.Subject,
				Status:      domain.OutcomeStatus(e.Status),
				Stage:       e.Stage,
				Label:       e.Label,
				Rationale:   e.Rationale,
				Error:       e.Error,
				ProcessedAt: e.ProcessedAt,
			},
		)
	}

	return entries, nil
}

func txEnd(tx *sqlx.Tx, err error) error {
	if err == nil {
		err = tx.Commit()
		if err != nil {
			return fmt.Errorf("could not commit tx: %w", err)
		}
	} else {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			errStr := err.Error()
			return fmt.Errorf("%s, could not rollback tx: %w", errStr, rollbackErr)
		} else {
			return err
		}
	}

	return nil
}
