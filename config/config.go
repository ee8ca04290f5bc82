// SPDX-License-Identifier: GPL-3.0-or-later
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/CrawX/go-gmail-triage/domain"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	ApiKeyEnv = "GEMINI_API_KEY"

	ProviderGmail = "gmail"
	ProviderImap  = "imap"

	TokenStoreFile    = "file"
	TokenStoreKeyring = "keyring"
)

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

type Sampling struct {
	Temperature     float32
	TopP            float32
	TopK            int32
	MaxOutputTokens int32
}

type Imap struct {
	Host          string
	User          string
	Password      string
	Folder        string
	ArchiveFolder string
	SentFolder    string
	Compress      bool
}

type Smtp struct {
	Host     string
	User     string
	Password string
	// ImplicitTLS selects SMTPS instead of STARTTLS.
	ImplicitTLS bool
}

type Config struct {
	Provider string

	CredentialsFile string
	TokenFile       string
	TokenStore      string

	IgnorePatternsFile string
	CheckpointFile     string
	IgnorePatterns     []string

	Journal string

	MaxMessagesPerPass int64
	IncrementalPolling bool
	Interval           Duration
	DryRun             bool
	HTMLFallback       bool

	SenderDisplayName string
	SenderAddress     string

	Model    string
	Sampling Sampling

	Imap Imap
	Smtp Smtp

	MetricsAddr string

	Loglevel *string

	// ApiKey is never read from the config file.
	ApiKey string `toml:"-"`
}

func defaultConfig() *Config {
	sampling := domain.DefaultSamplingParams()
	return &Config{
		Provider:           ProviderGmail,
		CredentialsFile:    "credentials.json",
		TokenFile:          "tokens/token.json",
		TokenStore:         TokenStoreFile,
		IgnorePatternsFile: "ignore_patterns.json",
		CheckpointFile:     "last_processed.txt",
		IgnorePatterns:     []string{"noreply@glassdoor.com", "noreply@reddit.com"},
		MaxMessagesPerPass: 2,
		Interval:           Duration{2 * time.Minute},
		Model:              "gemini-1.5-pro",
		Sampling: Sampling{
			Temperature:     sampling.Temperature,
			TopP:            sampling.TopP,
			TopK:            sampling.TopK,
			MaxOutputTokens: sampling.MaxOutputTokens,
		},
		Imap: Imap{
			Folder:        domain.LabelInbox,
			ArchiveFolder: "Archive",
		},
	}
}

// ReadConfig reads filename over the defaults. A missing file leaves the defaults in place.
// The api key comes from the environment, optionally populated from a .env file.
func ReadConfig(filename string) (*Config, error) {
	config := defaultConfig()

	_, err := toml.DecodeFile(filename, config)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &domain.ConfigError{Err: fmt.Errorf("could not read config file: %w", err)}
	}

	err = godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &domain.ConfigError{Err: fmt.Errorf("could not read .env file: %w", err)}
	}
	config.ApiKey = strings.TrimSpace(os.Getenv(ApiKeyEnv))

	err = config.validate()
	if err != nil {
		return nil, &domain.ConfigError{Err: err}
	}

	return config, nil
}

func (c *Config) SamplingParams() domain.SamplingParams {
	return domain.SamplingParams{
		Temperature:     c.Sampling.Temperature,
		TopP:            c.Sampling.TopP,
		TopK:            c.Sampling.TopK,
		MaxOutputTokens: c.Sampling.MaxOutputTokens,
	}
}

func (c *Config) validate() error {
	if err := validateNonEmptyStringField(c.ApiKey, ApiKeyEnv+" is not set in environment variables"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.IgnorePatternsFile, "IgnorePatternsFile must not be empty"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.CheckpointFile, "CheckpointFile must not be empty"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.Model, "Model must not be empty, set to a Gemini model name"); err != nil {
		return err
	}

	if c.MaxMessagesPerPass <= 0 {
		return fmt.Errorf("MaxMessagesPerPass must be positive, got %d", c.MaxMessagesPerPass)
	}

	if c.Interval.Duration <= 0 {
		return fmt.Errorf("Interval must be positive, got %s", c.Interval.Duration)
	}

	switch c.TokenStore {
	case TokenStoreFile, TokenStoreKeyring:
	default:
		return fmt.Errorf("unknown TokenStore %q, use %q or %q", c.TokenStore, TokenStoreFile, TokenStoreKeyring)
	}

	switch c.Provider {
	case ProviderGmail:
		if err := validateNonEmptyStringField(c.CredentialsFile, "CredentialsFile must not be empty, set to the OAuth client secret file"); err != nil {
			return err
		}
		if c.TokenStore == TokenStoreFile {
			if err := validateNonEmptyStringField(c.TokenFile, "TokenFile must not be empty when TokenStore is file"); err != nil {
				return err
			}
		}
	case ProviderImap:
		if err := validateNonEmptyStringField(c.Imap.Host, "Imap.Host must not be empty, set to host:port of the imap server"); err != nil {
			return err
		}
		if err := validateNonEmptyStringField(c.Imap.User, "Imap.User must not be empty, set to username on the imap server"); err != nil {
			return err
		}
		if err := validateNonEmptyStringField(c.Imap.Password, "Imap.Password must not be empty, set to password of Imap.User on the imap server"); err != nil {
			return err
		}
		if err := validateNonEmptyStringField(c.Imap.ArchiveFolder, "Imap.ArchiveFolder must not be empty"); err != nil {
			return err
		}
		if err := validateNonEmptyStringField(c.Smtp.Host, "Smtp.Host must not be empty, set to host:port of the smtp server used for replies"); err != nil {
			return err
		}
		if err := validateNonEmptyStringField(c.SenderAddress, "SenderAddress must be set when Provider is imap"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown Provider %q, use %q or %q", c.Provider, ProviderGmail, ProviderImap)
	}

	return nil
}

func validateNonEmptyStringField(field string, err string) error {
	if len(strings.TrimSpace(field)) == 0 {
		return errors.New(err)
	}

	return nil
}
