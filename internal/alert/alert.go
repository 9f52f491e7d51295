package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/john/leakwatch/internal/message"
)

// Kind tells what triggered an alert
type Kind string

const (
	KindThreatMatch  Kind = "THREAT_MATCH"
	KindFileDetected Kind = "FILE_DETECTED"
)

// TimeLayout is the timestamp format of the alert log.
const TimeLayout = "2006-01-02 15:04:05"

// previewLen caps the raw text shown on the console.
const previewLen = 100

// Record is one alert. It is built completely before it is written.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Platform  string    `json:"platform"`
	Source    string    `json:"source"`
	Actor     string    `json:"actor"`
	Tags      []string  `json:"tags,omitempty"`
	FileName  string    `json:"file_name,omitempty"`
	Preview   string    `json:"preview,omitempty"` // console only, never written to the log
}

// NewThreat builds a THREAT_MATCH record. Missing chat or sender fields
// fall back to placeholders.
func NewThreat(at time.Time, platform string, chat message.Chat, sender message.Sender, tags []string, raw string) Record {
	return Record{
		ID:        uuid.NewString(),
		Timestamp: at,
		Kind:      KindThreatMatch,
		Platform:  platform,
		Source:    chat.DisplayName(),
		Actor:     sender.DisplayHandle(),
		Tags:      append([]string(nil), tags...),
		Preview:   Preview(raw),
	}
}

// NewFile builds a FILE_DETECTED record.
func NewFile(at time.Time, platform string, chat message.Chat, sender message.Sender, filename string) Record {
	return Record{
		ID:        uuid.NewString(),
		Timestamp: at,
		Kind:      KindFileDetected,
		Platform:  platform,
		Source:    chat.DisplayName(),
		Actor:     sender.DisplayHandle(),
		FileName:  filename,
	}
}

// Payload renders the kind-specific tail of a log line.
func (r Record) Payload() string {
	switch r.Kind {
	case KindThreatMatch:
		return "Tags: " + strings.Join(r.Tags, ", ")
	case KindFileDetected:
		return "File: " + r.FileName
	default:
		return ""
	}
}

// Format renders the record as a single alert log line.
//
//	[2024-05-01 13:37:00] THREAT_MATCH | Src: Dumps | Actor: bob | Tags: combo, db dump
func Format(r Record) string {
	return fmt.Sprintf("[%s] %s | Src: %s | Actor: %s | %s",
		r.Timestamp.Format(TimeLayout), r.Kind, r.Source, r.Actor, r.Payload())
}

// Preview flattens raw text to one line and truncates it for display.
func Preview(raw string) string {
	flat := strings.ReplaceAll(raw, "\n", " ")
	runes := []rune(flat)
	if len(runes) > previewLen {
		runes = runes[:previewLen]
	}
	return string(runes) + "..."
}

// Appender persists formatted lines
type Appender interface {
	Append(line string) error
}

// Renderer shows alerts to the human at the terminal
type Renderer interface {
	Alert(r Record)
	AlertFailed(r Record, err error)
}

// Notifier forwards alerts to an external channel
type Notifier interface {
	Name() string
	Notify(ctx context.Context, r Record) error
}

// Sink writes alerts to the log first, then the console, then any notifiers.
type Sink struct {
	log       Appender
	console   Renderer
	notifiers []Notifier
	logger    *logrus.Entry
}

// NewSink creates a sink. console and notifiers may be nil.
func NewSink(log Appender, console Renderer, logger *logrus.Entry, notifiers ...Notifier) *Sink {
	return &Sink{
		log:       log,
		console:   console,
		notifiers: notifiers,
		logger:    logger,
	}
}

// Emit persists one record. If the log append fails the alert is not shown
// as delivered anywhere, so console and log never disagree.
func (s *Sink) Emit(ctx context.Context, r Record) error {
	if err := s.log.Append(Format(r)); err != nil {
		if s.console != nil {
			s.console.AlertFailed(r, err)
		}
		return fmt.Errorf("append alert: %w", err)
	}

	if s.console != nil {
		s.console.Alert(r)
	}

	for _, n := range s.notifiers {
		if err := n.Notify(ctx, r); err != nil {
			s.logger.WithFields(logrus.Fields{
				"notifier": n.Name(),
				"alert_id": r.ID,
			}).WithError(err).Error("Failed to forward alert")
		}
	}

	return nil
}
