// SPDX-License-Identifier: GPL-3.0-or-later
package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type passRunner interface {
	RunPass(ctx context.Context) (*PassReport, error)
}

// Run runs one pass immediately and then one per interval until ctx is done. Passes never
// overlap, ticks missed during a long pass collapse into one.
func (t *Triage) Run(ctx context.Context, interval time.Duration) error {
	return runScheduled(ctx, t, interval, t.l)
}

func runScheduled(ctx context.Context, runner passRunner, interval time.Duration, l *logrus.Logger) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.WithField("interval", interval).Info("Starting scheduled triage")
	for {
		_, err := runner.RunPass(ctx)
		if err != nil {
			l.WithField("error", err).Error("Pass failed")
		}

		if ctx.Err() != nil {
			l.Info("Stopping scheduled triage")
			return nil
		}

		select {
		case <-ctx.Done():
			l.Info("Stopping scheduled triage")
			return nil
		case <-ticker.C:
		}
	}
}
