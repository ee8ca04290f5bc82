// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import "fmt"

// ConfigError is fatal at startup.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("configuration error: %v", e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// AuthError is fatal at startup.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("authorization failed: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("mail provider %s failed: %v", e.Op, e.Err) }
func (e *ProviderError) Unwrap() error { return e.Err }

type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string { return fmt.Sprintf("classification failed: %v", e.Err) }
func (e *ClassificationError) Unwrap() error { return e.Err }

type StoreError struct {
	Path string
	Err  error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Path, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }
