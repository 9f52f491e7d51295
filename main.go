package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gotd/td/tg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/john/leakwatch/internal/alert"
	"github.com/john/leakwatch/internal/config"
	"github.com/john/leakwatch/internal/console"
	"github.com/john/leakwatch/internal/crawler"
	"github.com/john/leakwatch/internal/dispatcher"
	"github.com/john/leakwatch/internal/health"
	"github.com/john/leakwatch/internal/journal"
	"github.com/john/leakwatch/internal/kick"
	"github.com/john/leakwatch/internal/link"
	"github.com/john/leakwatch/internal/logging"
	"github.com/john/leakwatch/internal/message"
	"github.com/john/leakwatch/internal/metrics"
	"github.com/john/leakwatch/internal/notifier"
	"github.com/john/leakwatch/internal/telegram"
	"github.com/john/leakwatch/internal/twitch"
	"github.com/john/leakwatch/internal/uploader"
)

func main() {
	out := console.New(os.Stdout)
	out.Banner()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	logger := logging.New(cfg.LogLevel)
	errLog := logging.NewErrorLog(cfg.Files.ErrorLog, cfg.Files.ErrorLogMaxSizeMB, cfg.Files.ErrorLogMaxBackups)
	log := logging.Component(logger, "main")

	signatures, err := cfg.SignatureSet()
	if err != nil {
		log.WithError(err).Fatal("Failed to load signatures")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	alertLog := journal.New(cfg.Files.AlertLog)
	linksFile := journal.New(cfg.Files.LinksFile)

	var notifiers []alert.Notifier
	if cfg.Notifier.TelegramToken != "" {
		bot, err := notifier.NewTelegram(cfg.Notifier.TelegramToken, cfg.Notifier.TelegramChatIDs)
		if err != nil {
			log.WithError(err).Fatal("Failed to create Telegram notifier")
		}
		notifiers = append(notifiers, bot)
	}
	var kafka *notifier.Kafka
	if len(cfg.Notifier.KafkaBrokers) > 0 {
		kafka, err = notifier.NewKafka(cfg.Notifier.KafkaBrokers, cfg.Notifier.KafkaTopic)
		if err != nil {
			log.WithError(err).Fatal("Failed to create Kafka notifier")
		}
		defer kafka.Close()
		notifiers = append(notifiers, kafka)
	}

	// Notifiers are drained by their own goroutine, off the event path.
	var forward *alert.Queue
	var sinkNotifiers []alert.Notifier
	if len(notifiers) > 0 {
		forward = alert.NewQueue(cfg.Dispatcher.BufferSize, notifier.DefaultTimeout, logging.Component(logger, "notifier"), notifiers...)
		sinkNotifiers = append(sinkNotifiers, forward)
	}

	sink := alert.NewSink(alertLog, out, logging.Component(logger, "alert"), sinkNotifiers...)

	tgClient := telegram.New(telegram.Options{
		APIID:       cfg.Telegram.APIID,
		APIHash:     cfg.Telegram.APIHash,
		Phone:       cfg.Telegram.Phone,
		Password:    cfg.Telegram.Password,
		SessionFile: cfg.Telegram.SessionFile,
		MuteJoined:  cfg.MuteJoinedGroups(),
		CodeInput:   os.Stdin,
	}, logging.Component(logger, "telegram"))

	crawl := crawler.New(tgClient, linksFile, crawler.Options{
		Enabled:        cfg.CrawlerEnabled(),
		JoinsPerMinute: cfg.Crawler.JoinsPerMinute,
		Burst:          cfg.Crawler.Burst,
	}, logging.Component(logger, "crawler"))

	disp := dispatcher.New(dispatcher.Deps{
		Signatures: signatures,
		Extractor:  link.NewExtractor(cfg.LinkHosts...),
		Crawler:    crawl,
		Alerts:     sink,
		Display:    out,
		Metrics:    m,
		ErrorLog:   logging.Component(errLog, "dispatcher"),
	})

	events := make(chan message.Event, cfg.Dispatcher.BufferSize)

	var twitchConn *twitch.Connector
	if len(cfg.Twitch.Channels) > 0 {
		log.WithField("channels", cfg.Twitch.Channels).Info("Monitoring Twitch channels")
		twitchConn = twitch.New(cfg.Twitch.Username, cfg.Twitch.OAuth, cfg.Twitch.Channels, logging.Component(logger, "twitch"))
	}

	var kickConn *kick.Connector
	if cfg.Kick.Enabled && len(cfg.Kick.Channels) > 0 {
		channels := make([]kick.ChannelConfig, len(cfg.Kick.Channels))
		for i, ch := range cfg.Kick.Channels {
			channels[i] = kick.ChannelConfig{Slug: ch.Slug, ChatroomID: ch.ChatroomID}
		}
		log.WithField("channels", len(channels)).Info("Monitoring Kick channels")
		kickConn = kick.New(channels, logging.Component(logger, "kick"))
	}

	var archiver *uploader.Archiver
	if cfg.S3Enabled() {
		archiver, err = uploader.New(ctx, uploader.Options{
			Bucket:               cfg.S3.Bucket,
			Region:               cfg.S3.Region,
			Prefix:               cfg.S3.Prefix,
			RoleARN:              cfg.S3.RoleARN,
			WebIdentityTokenFile: cfg.S3.WebIdentityTokenFile,
			AccessKeyID:          cfg.S3.AccessKeyID,
			SecretAccessKey:      cfg.S3.SecretAccessKey,
			Endpoint:             cfg.S3.Endpoint,
			Interval:             time.Duration(cfg.Archive.IntervalMinutes) * time.Minute,
			MaxRetries:           cfg.Archive.MaxRetries,
		}, logging.Component(logger, "archiver"))
		if err != nil {
			log.WithError(err).Fatal("Failed to create archiver")
		}
	}

	healthServer := health.New(cfg.Health.Addr, registry, logging.Component(logger, "health"))

	var wg sync.WaitGroup

	out.Connecting()
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := tgClient.Start(ctx, events, func(self *tg.User) {
			name := strings.TrimSpace(self.FirstName + " " + self.LastName)
			out.Connected(name, self.Username)
			out.SignaturesLoaded(signatures.Len())
			out.Active()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			errLog.WithError(err).Error("Telegram session ended")
			cancel()
		}
	}()

	if twitchConn != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := twitchConn.Start(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
				errLog.WithError(err).Error("Twitch connector error")
			}
		}()
	}

	if kickConn != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := kickConn.Start(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
				errLog.WithError(err).Error("Kick connector error")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := disp.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
			errLog.WithError(err).Error("Dispatcher error")
		}
	}()

	if forward != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := forward.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errLog.WithError(err).Error("Alert forwarder error")
			}
		}()
	}

	if archiver != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := archiver.Start(ctx, alertLog, linksFile); err != nil && !errors.Is(err, context.Canceled) {
				errLog.WithError(err).Error("Archiver error")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errLog.WithError(err).Error("Health server error")
		}
	}()

	log.Info("All components started")

	select {
	case <-sigChan:
		log.Info("Shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Warn("Session lost, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down health server")
	}

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("All components stopped gracefully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout exceeded, forcing exit")
	}

	out.Stopped()
}
