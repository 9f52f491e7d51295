package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/john/leakwatch/internal/alert"
	"github.com/john/leakwatch/internal/classifier"
	"github.com/john/leakwatch/internal/crawler"
	"github.com/john/leakwatch/internal/link"
	"github.com/john/leakwatch/internal/message"
	"github.com/john/leakwatch/internal/metrics"
	"github.com/john/leakwatch/internal/signature"
)

// Pipeline steps, as reported in StepError and the error log.
const (
	StepChat       = "chat"
	StepSender     = "sender"
	StepLinks      = "links"
	StepKeywords   = "keywords"
	StepAttachment = "attachment"
)

// Discoverer follows invite links
type Discoverer interface {
	Discover(ctx context.Context, cand link.Candidate) crawler.Result
}

// Emitter persists alerts
type Emitter interface {
	Emit(ctx context.Context, r alert.Record) error
}

// Display shows discovery progress to the operator
type Display interface {
	LinkDetected(chat, url string)
	Joined(url string)
	Suppressed(url, reason string)
}

// Deps wires a Dispatcher. Signatures, Alerts and ErrorLog are required.
type Deps struct {
	Signatures signature.Set
	Extractor  *link.Extractor // defaults to link.DefaultHosts
	Crawler    Discoverer      // nil skips discovery but still extracts links
	Alerts     Emitter
	Display    Display
	Metrics    *metrics.Metrics
	ErrorLog   *logrus.Entry
}

// StepError is a failure isolated to one pipeline step
type StepError struct {
	Step string
	Err  error
}

func (e StepError) Error() string { return e.Step + ": " + e.Err.Error() }

func (e StepError) Unwrap() error { return e.Err }

// Report describes what happened to a single event
type Report struct {
	Chat     message.Chat
	Sender   message.Sender
	Links    []crawler.Result
	Tags     []string
	Verdict  classifier.Verdict
	Alerts   []alert.Record
	Failures []StepError
}

// Failed reports whether step failed.
func (r Report) Failed(step string) bool {
	for _, f := range r.Failures {
		if f.Step == step {
			return true
		}
	}
	return false
}

// Dispatcher runs every inbound event through link discovery, keyword
// matching and file classification, one event at a time.
type Dispatcher struct {
	signatures signature.Set
	extractor  *link.Extractor
	crawler    Discoverer
	alerts     Emitter
	display    Display
	metrics    *metrics.Metrics
	errLog     *logrus.Entry
	now        func() time.Time
}

// New creates a dispatcher.
func New(deps Deps) *Dispatcher {
	extractor := deps.Extractor
	if extractor == nil {
		extractor = link.NewExtractor()
	}
	return &Dispatcher{
		signatures: deps.Signatures,
		extractor:  extractor,
		crawler:    deps.Crawler,
		alerts:     deps.Alerts,
		display:    deps.Display,
		metrics:    deps.Metrics,
		errLog:     deps.ErrorLog,
		now:        time.Now,
	}
}

// Run consumes events until ctx is cancelled or events is closed. Event N+1
// is not read until event N is fully processed, so alert order follows
// arrival order.
func (d *Dispatcher) Run(ctx context.Context, events <-chan message.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.Process(ctx, ev)
		}
	}
}

// Process runs the pipeline over one event. A failing step is logged and
// recorded in the report; the remaining steps still run.
func (d *Dispatcher) Process(ctx context.Context, ev message.Event) Report {
	started := d.now()
	rep := Report{Verdict: classifier.NotClassified}

	platform := ""
	d.step(&rep, StepChat, func() error {
		platform = ev.Platform()
		chat, err := ev.Chat(ctx)
		rep.Chat = chat
		return err
	})
	d.step(&rep, StepSender, func() error {
		sender, err := ev.Sender(ctx)
		rep.Sender = sender
		return err
	})

	d.step(&rep, StepLinks, func() error {
		return d.discover(ctx, ev, &rep)
	})

	d.step(&rep, StepKeywords, func() error {
		raw := ev.RawText()
		rep.Tags = d.signatures.Match(signature.Normalize(raw))
		if len(rep.Tags) == 0 {
			return nil
		}
		return d.emit(ctx, &rep, alert.NewThreat(started, platform, rep.Chat, rep.Sender, rep.Tags, raw))
	})

	d.step(&rep, StepAttachment, func() error {
		att, err := ev.Attachment()
		if err != nil {
			return fmt.Errorf("resolve attachment: %w", err)
		}
		rep.Verdict = classifier.Classify(att)
		if rep.Verdict != classifier.Suspicious {
			return nil
		}
		return d.emit(ctx, &rep, alert.NewFile(started, platform, rep.Chat, rep.Sender, att.FileName))
	})

	d.metrics.EventProcessed(d.now().Sub(started))
	return rep
}

func (d *Dispatcher) discover(ctx context.Context, ev message.Event, rep *Report) error {
	candidates := d.extractor.Extract(ev.RawText())
	for _, cand := range candidates {
		d.metrics.LinkExtracted()
		if d.display != nil {
			d.display.LinkDetected(rep.Chat.DisplayName(), cand.URL)
		}
		if d.crawler == nil {
			continue
		}

		res := d.crawler.Discover(ctx, cand)
		rep.Links = append(rep.Links, res)
		d.metrics.JoinOutcome(string(res.Outcome))

		if d.display != nil {
			if res.State == crawler.StateJoined {
				d.display.Joined(cand.URL)
			} else {
				d.display.Suppressed(cand.URL, string(res.Outcome))
			}
		}
	}
	return nil
}

func (d *Dispatcher) emit(ctx context.Context, rep *Report, r alert.Record) error {
	if err := d.alerts.Emit(ctx, r); err != nil {
		return err
	}
	rep.Alerts = append(rep.Alerts, r)
	d.metrics.Alert(string(r.Kind))
	return nil
}

// step runs fn, turning both returned errors and panics into a StepError.
func (d *Dispatcher) step(rep *Report, name string, fn func() error) {
	var recovered any
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				recovered = p
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return fn()
	}()
	if err == nil {
		return
	}

	rep.Failures = append(rep.Failures, StepError{Step: name, Err: err})
	d.metrics.HandlerError(name)

	fields := logrus.Fields{
		"step": name,
		"chat": rep.Chat.DisplayName(),
	}
	if recovered != nil {
		fields["panic"] = fmt.Sprint(recovered)
	}
	d.errLog.WithFields(fields).WithError(err).Error("Handler error")
}
