package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gotd/td/tg"

	"github.com/john/leakwatch/internal/config"
	"github.com/john/leakwatch/internal/crawler"
	"github.com/john/leakwatch/internal/journal"
	"github.com/john/leakwatch/internal/link"
	"github.com/john/leakwatch/internal/logging"
	"github.com/john/leakwatch/internal/telegram"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	linksPath := cfg.Files.LinksFile
	if len(os.Args) > 1 {
		linksPath = os.Args[1]
	}

	candidates, err := readCandidates(journal.New(linksPath), link.NewExtractor(cfg.LinkHosts...))
	if err != nil {
		fmt.Printf("Failed to read %s: %v\n", linksPath, err)
		os.Exit(1)
	}
	if len(candidates) == 0 {
		fmt.Printf("No invite links in %s\n", linksPath)
		return
	}
	fmt.Printf("Replaying %d unique link(s) from %s...\n\n", len(candidates), linksPath)

	logger := logging.New(cfg.LogLevel)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := telegram.New(telegram.Options{
		APIID:       cfg.Telegram.APIID,
		APIHash:     cfg.Telegram.APIHash,
		Phone:       cfg.Telegram.Phone,
		Password:    cfg.Telegram.Password,
		SessionFile: cfg.Telegram.SessionFile,
		MuteJoined:  cfg.MuteJoinedGroups(),
		CodeInput:   os.Stdin,
	}, logging.Component(logger, "telegram"))

	// The links are already on file, so the crawler gets no recorder.
	crawl := crawler.New(client, nil, crawler.Options{
		Enabled:        true,
		JoinsPerMinute: cfg.Crawler.JoinsPerMinute,
		Burst:          cfg.Crawler.Burst,
	}, logging.Component(logger, "crawler"))

	ready := make(chan struct{})
	sessionErr := make(chan error, 1)
	go func() {
		sessionErr <- client.Start(ctx, nil, func(*tg.User) { close(ready) })
	}()

	select {
	case <-ready:
	case err := <-sessionErr:
		fmt.Printf("Failed to start session: %v\n", err)
		os.Exit(1)
	case <-ctx.Done():
		return
	}

	summary := replay(ctx, crawl, candidates, spacing(cfg.Crawler.JoinsPerMinute))
	cancel()
	<-sessionErr

	printSummary(summary)
}

// readCandidates returns the unique invite links in the journal, first seen first.
func readCandidates(f *journal.File, extractor *link.Extractor) ([]link.Candidate, error) {
	lines, err := f.Lines()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []link.Candidate
	for _, line := range lines {
		token, ok := extractor.TokenFromURL(line)
		if !ok || seen[token] {
			continue
		}
		seen[token] = true
		out = append(out, link.Candidate{URL: line, Token: token})
	}
	return out, nil
}

// spacing is the pause between attempts that keeps the limiter satisfied.
func spacing(joinsPerMinute float64) time.Duration {
	if joinsPerMinute <= 0 {
		return 0
	}
	return time.Duration(float64(time.Minute)/joinsPerMinute) + time.Second
}

type discoverer interface {
	Discover(ctx context.Context, cand link.Candidate) crawler.Result
}

func replay(ctx context.Context, d discoverer, candidates []link.Candidate, wait time.Duration) map[crawler.Outcome][]string {
	summary := make(map[crawler.Outcome][]string)

	for i, cand := range candidates {
		if i > 0 && wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return summary
			}
		}

		res := d.Discover(ctx, cand)
		summary[res.Outcome] = append(summary[res.Outcome], cand.URL)

		var flood *crawler.FloodWaitError
		if errors.As(res.Err, &flood) {
			fmt.Printf("✗ Flood wait of %v, stopping replay\n", flood.Wait)
			return summary
		}
	}
	return summary
}

func printSummary(summary map[crawler.Outcome][]string) {
	outcomes := make([]string, 0, len(summary))
	for o := range summary {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)

	for _, o := range outcomes {
		urls := summary[crawler.Outcome(o)]
		fmt.Printf("%s (%d):\n", o, len(urls))
		fmt.Println("---")
		for _, u := range urls {
			fmt.Println(u)
		}
		fmt.Println()
	}
}
