// SPDX-License-Identifier: GPL-3.0-or-later
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/CrawX/go-gmail-triage/domain"

	"github.com/sirupsen/logrus"
)

var DefaultIgnorePatterns = []string{
	"notifications",
	"noreply",
	"no-reply",
	"yes-reply",
	"hello",
	"informer",
	"info@",
	"daily.dev",
	"duolingo.com",
	"glassdoor.com",
	"freelancer.com",
	"beefree.io",
	"vercel.com",
	"disqus.com",
}

// IgnoreList is a set of sender substrings persisted as a JSON array.
type IgnoreList struct {
	path     string
	defaults []string

	mu sync.Mutex
	l  *logrus.Logger
}

func NewIgnoreList(path string, defaults []string, l *logrus.Logger) *IgnoreList {
	return &IgnoreList{
		path:     path,
		defaults: normalize(defaults),
		l:        l,
	}
}

// ShouldIgnore fails open: if the store cannot be read no sender is ignored.
func (il *IgnoreList) ShouldIgnore(sender string) bool {
	il.mu.Lock()
	defer il.mu.Unlock()

	patterns, err := il.load()
	if errors.Is(err, fs.ErrNotExist) {
		il.l.WithField("file", il.path).Info("Ignore patterns not found, creating with defaults")
		patterns = il.defaults
		err = il.save(patterns)
		if err != nil {
			il.l.WithField("error", err).Warn("Could not create ignore patterns")
		}
	} else if err != nil {
		il.l.WithField("error", err).Error("Could not read ignore patterns, not ignoring any sender")
		return false
	}

	sender = strings.ToLower(sender)
	for _, p := range patterns {
		if len(p) > 0 && strings.Contains(sender, p) {
			il.l.WithFields(logrus.Fields{"sender": sender, "pattern": p}).Debug("Sender matches ignore pattern")
			return true
		}
	}
	return false
}

// AddPatterns merges patterns into the persisted set and returns the merged set. An unreadable
// store is treated as missing and recreated from the defaults.
func (il *IgnoreList) AddPatterns(patterns []string) ([]string, error) {
	il.mu.Lock()
	defer il.mu.Unlock()

	current, err := il.load()
	if err != nil {
		il.l.WithFields(logrus.Fields{"file": il.path, "error": err}).Info("Ignore patterns not readable, starting from defaults")
		current = il.defaults
	}

	merged := union(current, normalize(patterns))
	err = il.save(merged)
	if err != nil {
		return nil, err
	}

	il.l.WithFields(logrus.Fields{"file": il.path, "patterns": len(merged)}).Info("Updated ignore patterns")
	return merged, nil
}

func (il *IgnoreList) load() ([]string, error) {
	data, err := os.ReadFile(il.path)
	if err != nil {
		return nil, &domain.StoreError{Path: il.path, Err: err}
	}

	patterns := []string{}
	err = json.Unmarshal(data, &patterns)
	if err != nil {
		return nil, &domain.StoreError{Path: il.path, Err: fmt.Errorf("could not parse ignore patterns: %w", err)}
	}

	return normalize(patterns), nil
}

func (il *IgnoreList) save(patterns []string) error {
	data, err := json.MarshalIndent(patterns, "", "  ")
	if err != nil {
		return &domain.StoreError{Path: il.path, Err: fmt.Errorf("could not serialize ignore patterns: %w", err)}
	}

	err = writeFileAtomic(il.path, data)
	if err != nil {
		return &domain.StoreError{Path: il.path, Err: err}
	}
	return nil
}

func normalize(patterns []string) []string {
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if len(p) > 0 {
			normalized = append(normalized, p)
		}
	}
	return normalized
}

// union keeps the order of first occurrence.
func union(sets ...[]string) []string {
	seen := map[string]bool{}
	result := []string{}
	for _, set := range sets {
		for _, s := range set {
			if seen[s] {
				continue
			}
			seen[s] = true
			result = append(result, s)
		}
	}
	return result
}
