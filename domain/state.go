// SPDX-License-Identifier: GPL-3.0-or-later

//go:generate mockgen -destination=mocks/state.go -package=mocks . IgnoreList,Checkpoint
package domain

import "time"

type IgnoreList interface {
	ShouldIgnore(sender string) bool
	AddPatterns(patterns []string) ([]string, error)
}

type Checkpoint interface {
	Load() time.Time
	Advance(t time.Time) error
}
