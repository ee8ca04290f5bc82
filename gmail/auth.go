// SPDX-License-Identifier: GPL-3.0-or-later
package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/CrawX/go-gmail-triage/domain"
	"github.com/CrawX/go-gmail-triage/log"

	"github.com/99designs/keyring"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

const (
	keyringService = "go-gmail-triage"
	keyringKey     = "gmail-oauth-token"
)

var ErrNoToken = errors.New("no token stored")

type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(token *oauth2.Token) error
}

type FileTokenStore struct {
	Path string
}

func (s *FileTokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	} else if err != nil {
		return nil, fmt.Errorf("could not read token file %s: %w", s.Path, err)
	}

	token := &oauth2.Token{}
	err = json.Unmarshal(data, token)
	if err != nil {
		return nil, fmt.Errorf("could not parse token file %s: %w", s.Path, err)
	}
	return token, nil
}

func (s *FileTokenStore) Save(token *oauth2.Token) error {
	err := os.MkdirAll(filepath.Dir(s.Path), 0700)
	if err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("could not serialize token: %w", err)
	}

	err = os.WriteFile(s.Path, data, 0600)
	if err != nil {
		return fmt.Errorf("could not write token file %s: %w", s.Path, err)
	}
	return nil
}

type KeyringTokenStore struct {
	ring keyring.Keyring
}

// OpenKeyringTokenStore uses the OS keyring, falling back to an encrypted file keyring in fileDir.
func OpenKeyringTokenStore(fileDir string) (*KeyringTokenStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(keyringService + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open keyring: %w", err)
	}
	return NewKeyringTokenStore(ring), nil
}

func NewKeyringTokenStore(ring keyring.Keyring) *KeyringTokenStore {
	return &KeyringTokenStore{ring: ring}
}

func (s *KeyringTokenStore) Load() (*oauth2.Token, error) {
	item, err := s.ring.Get(keyringKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNoToken
	} else if err != nil {
		return nil, fmt.Errorf("could not read token from keyring: %w", err)
	}

	token := &oauth2.Token{}
	err = json.Unmarshal(item.Data, token)
	if err != nil {
		return nil, fmt.Errorf("could not parse keyring token: %w", err)
	}
	return token, nil
}

func (s *KeyringTokenStore) Save(token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("could not serialize token: %w", err)
	}

	err = s.ring.Set(keyring.Item{
		Key:   keyringKey,
		Data:  data,
		Label: "Gmail OAuth token",
	})
	if err != nil {
		return fmt.Errorf("could not write token to keyring: %w", err)
	}
	return nil
}

// Authorize builds an authenticated HTTP client for the gmail.modify scope. Without a stored token the
// user is sent through the consent flow, the code is read from prompt.
func Authorize(ctx context.Context, credentialsFile string, store TokenStore, prompt io.Reader, out io.Writer) (*http.Client, error) {
	l := log.Logger(log.LOG_GMAIL)

	secret, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, &domain.AuthError{Err: fmt.Errorf("could not read client secret file: %w", err)}
	}

	config, err := google.ConfigFromJSON(secret, gmail.GmailModifyScope)
	if err != nil {
		return nil, &domain.AuthError{Err: fmt.Errorf("could not parse client secret file: %w", err)}
	}

	token, err := store.Load()
	if err != nil {
		if !errors.Is(err, ErrNoToken) {
			l.WithField("error", err).Warn("Stored token unusable, requesting a new one")
		}

		token, err = tokenFromWeb(ctx, config, prompt, out)
		if err != nil {
			return nil, &domain.AuthError{Err: err}
		}

		err = store.Save(token)
		if err != nil {
			return nil, &domain.AuthError{Err: err}
		}
		l.Info("Stored new token")
	}

	source := &persistingTokenSource{
		base:  config.TokenSource(ctx, token),
		store: store,
		last:  token.AccessToken,
		l:     l,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, source)), nil
}

func tokenFromWeb(ctx context.Context, config *oauth2.Config, prompt io.Reader, out io.Writer) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Go to the following link in your browser then type the authorization code:\n%v\n", authURL)

	var code string
	_, err := fmt.Fscan(prompt, &code)
	if err != nil {
		return nil, fmt.Errorf("could not read authorization code: %w", err)
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("could not exchange authorization code: %w", err)
	}
	return token, nil
}

// persistingTokenSource writes refreshed tokens back to the store.
type persistingTokenSource struct {
	base  oauth2.TokenSource
	store TokenStore

	mu   sync.Mutex
	last string

	l *logrus.Logger
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		err = s.store.Save(token)
		if err != nil {
			s.l.WithField("error", err).Warn("Could not persist refreshed token")
		} else {
			s.last = token.AccessToken
		}
	}
	return token, nil
}
