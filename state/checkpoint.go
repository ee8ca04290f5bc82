// SPDX-License-Identifier: GPL-3.0-or-later
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/CrawX/go-gmail-triage/domain"

	"github.com/sirupsen/logrus"
)

const DefaultCheckpointLookback = 5 * time.Minute

// Checkpoint persists the time of the last successful pass as epoch milliseconds.
type Checkpoint struct {
	path string
	now  func() time.Time

	mu sync.Mutex
	l  *logrus.Logger
}

func NewCheckpoint(path string, now func() time.Time, l *logrus.Logger) *Checkpoint {
	if now == nil {
		now = time.Now
	}
	return &Checkpoint{
		path: path,
		now:  now,
		l:    l,
	}
}

// Load never fails: an unreadable checkpoint is replaced by DefaultCheckpointLookback before now.
func (c *Checkpoint) Load() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.read()
	if err == nil {
		return t
	}

	t = c.now().Add(-DefaultCheckpointLookback)
	c.l.WithFields(logrus.Fields{"error": err, "default": t.Format(time.RFC3339)}).Warn("Could not read checkpoint, using default")

	err = c.write(t)
	if err != nil {
		c.l.WithField("error", err).Error("Could not persist default checkpoint")
	}
	return t
}

// Advance persists t unless the stored checkpoint is already later.
func (c *Checkpoint) Advance(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.read()
	if err == nil && t.Before(current) {
		c.l.WithFields(logrus.Fields{"current": current.Format(time.RFC3339), "requested": t.Format(time.RFC3339)}).Debug("Not moving checkpoint backwards")
		return nil
	}

	err = c.write(t)
	if err != nil {
		return err
	}

	c.l.WithField("checkpoint", t.Format(time.RFC3339)).Debug("Advanced checkpoint")
	return nil
}

func (c *Checkpoint) read() (time.Time, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return time.Time{}, &domain.StoreError{Path: c.path, Err: err}
	}

	millis, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, &domain.StoreError{Path: c.path, Err: fmt.Errorf("could not parse checkpoint: %w", err)}
	}

	return time.UnixMilli(millis), nil
}

func (c *Checkpoint) write(t time.Time) error {
	err := writeFileAtomic(c.path, []byte(strconv.FormatInt(t.UnixMilli(), 10)))
	if err != nil {
		return &domain.StoreError{Path: c.path, Err: err}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return fmt.Errorf("could not create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("could not create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(data)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("could not write temporary file: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("could not close temporary file: %w", err)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		return fmt.Errorf("could not replace file: %w", err)
	}
	return nil
}
