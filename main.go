// SPDX-License-Identifier: GPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/CrawX/go-gmail-triage/classifier"
	"github.com/CrawX/go-gmail-triage/classifier/gemini"
	"github.com/CrawX/go-gmail-triage/config"
	"github.com/CrawX/go-gmail-triage/domain"
	"github.com/CrawX/go-gmail-triage/gmail"
	"github.com/CrawX/go-gmail-triage/imapconnection"
	"github.com/CrawX/go-gmail-triage/log"
	"github.com/CrawX/go-gmail-triage/metrics"
	"github.com/CrawX/go-gmail-triage/persistence"
	"github.com/CrawX/go-gmail-triage/state"
	"github.com/CrawX/go-gmail-triage/triage"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

func main() {
	os.Exit(run())
}

type passRunner interface {
	RunPass(ctx context.Context) (*triage.PassReport, error)
}

// runOnce returns the process exit code of a single pass.
func runOnce(ctx context.Context, runner passRunner, logger *logrus.Logger) int {
	report, err := runner.RunPass(ctx)
	if err != nil {
		logger.WithField("error", err).Error("Pass failed")
		return 1
	}

	logger.WithFields(logrus.Fields{"listed": report.Listed, "failed": report.Count(domain.Failed)}).Info("Single pass done")
	return 0
}

func run() int {
	configFile := flag.String("config", "config.toml", "path to the config file")
	once := flag.Bool("once", false, "run a single pass and exit")
	history := flag.Int("history", 0, "print the last N journal entries and exit")
	flag.Parse()

	log.InitLogging("debug")
	logger := log.Logger(log.LOG_MAIN)

	conf, err := config.ReadConfig(*configFile)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not load config")
	}

	if conf.Loglevel != nil {
		log.SetLogLevel(*conf.Loglevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var journal domain.Journal
	if len(conf.Journal) > 0 {
		p, err := persistence.NewPersistence(conf.Journal)
		if err != nil {
			logger.WithField("error", err).Fatal("Could not open journal")
		}
		defer p.Close()
		journal = p
	}

	if *history > 0 {
		if journal == nil {
			logger.Fatal("History requires Journal to be set in the config")
		}
		printHistory(journal, *history, logger)
		return 0
	}

	stateLogger := log.Logger(log.LOG_STATE)
	ignoreList := state.NewIgnoreList(conf.IgnorePatternsFile, state.DefaultIgnorePatterns, stateLogger)
	if len(conf.IgnorePatterns) > 0 {
		patterns, err := ignoreList.AddPatterns(conf.IgnorePatterns)
		if err != nil {
			logger.WithField("error", err).Warn("Could not add configured ignore patterns")
		} else {
			logger.WithField("patterns", len(patterns)).Debug("Seeded ignore patterns")
		}
	}
	checkpoint := state.NewCheckpoint(conf.CheckpointFile, nil, stateLogger)

	generator, err := gemini.New(ctx, conf.ApiKey, conf.Model)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not start gemini client")
	}
	defer generator.Close()
	cl := classifier.NewClassifier(generator, conf.SamplingParams(), conf.SenderDisplayName)

	var provider domain.MailProvider
	switch conf.Provider {
	case config.ProviderGmail:
		provider = newGmail(ctx, conf, logger)
	case config.ProviderImap:
		imapConn := newImap(conf, logger)
		defer imapConn.Close()
		provider = imapConn
	}

	configs := []triage.ConfigFunc{triage.MaxMessagesPerPass(conf.MaxMessagesPerPass)}
	if conf.IncrementalPolling {
		configs = append(configs, triage.Incremental())
	}
	if conf.DryRun {
		configs = append(configs, triage.DryRun())
	}
	if conf.HTMLFallback {
		configs = append(configs, triage.HTMLFallback())
	}
	if journal != nil {
		configs = append(configs, triage.WithJournal(journal))
	}
	if len(conf.SenderAddress) > 0 {
		configs = append(configs, triage.ReplyFrom(conf.SenderDisplayName, conf.SenderAddress))
	}

	tr, err := triage.NewTriage(provider, cl, ignoreList, checkpoint, configs...)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not start triage")
	}

	if len(conf.MetricsAddr) > 0 {
		go func() {
			logger.WithField("addr", conf.MetricsAddr).Info("Serving metrics")
			err := metrics.Serve(ctx, conf.MetricsAddr)
			if err != nil {
				logger.WithField("error", err).Error("Metrics server stopped")
			}
		}()
	}

	logger.WithFields(logrus.Fields{"provider": conf.Provider, "model": conf.Model, "dryrun": conf.DryRun, "incremental": conf.IncrementalPolling}).Info("Starting triage")
	if conf.DryRun {
		logger.Warn("Skipping labels, archiving & replies due to dry-run")
	}

	if *once {
		return runOnce(ctx, tr, logger)
	}

	err = tr.Run(ctx, conf.Interval.Duration)
	if err != nil {
		logger.WithField("error", err).Error("Triage failed")
		return 1
	}
	return 0
}

func newGmail(ctx context.Context, conf *config.Config, logger *logrus.Logger) *gmail.Gmail {
	var store gmail.TokenStore
	switch conf.TokenStore {
	case config.TokenStoreKeyring:
		keyringStore, err := gmail.OpenKeyringTokenStore(filepath.Dir(conf.TokenFile))
		if err != nil {
			logger.WithField("error", err).Fatal("Could not open token keyring")
		}
		store = keyringStore
	default:
		store = &gmail.FileTokenStore{Path: conf.TokenFile}
	}

	httpClient, err := gmail.Authorize(ctx, conf.CredentialsFile, store, os.Stdin, os.Stdout)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not authorize with gmail")
	}

	g, err := gmail.NewGmail(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		logger.WithField("error", err).Fatal("Could not start gmail client")
	}
	return g
}

func newImap(conf *config.Config, logger *logrus.Logger) *imapconnection.ImapConnection {
	folders := imapconnection.Folders{
		Inbox:   conf.Imap.Folder,
		Archive: conf.Imap.ArchiveFolder,
		Sent:    conf.Imap.SentFolder,
	}
	imapConn, err := imapconnection.NewImapConnection(conf.Imap.Host, conf.Imap.User, conf.Imap.Password, folders, conf.Imap.Compress)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not start imap connector")
	}

	relay := imapconnection.NewSmtpRelay(conf.Smtp.Host, conf.Smtp.User, conf.Smtp.Password, conf.Smtp.ImplicitTLS)
	imapConn.SetRelay(relay, conf.SenderAddress)
	return imapConn
}

func printHistory(journal domain.Journal, limit int, logger *logrus.Logger) {
	entries, err := journal.RecentEntries(limit)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not read journal")
	}

	for _, e := range entries {
		fmt.Printf("%s\t%s\t%-9s\t%-10s\t%-16s\t%s\t%s\n",
			e.ProcessedAt.Local().Format("2006-01-02 15:04:05"), e.MessageId, e.Status, e.Stage, e.Label, e.Sender, e.Subject)
		if len(e.Error) > 0 {
			fmt.Printf("\t%s\n", e.Error)
		}
	}
}
