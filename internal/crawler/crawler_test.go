package crawler

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john/leakwatch/internal/journal"
	"github.com/john/leakwatch/internal/link"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeJoiner struct {
	outcome Outcome
	err     error
	calls   []string
	joined  map[string]bool
}

func (f *fakeJoiner) Join(_ context.Context, token string) (Outcome, error) {
	f.calls = append(f.calls, token)
	if f.joined != nil {
		if f.joined[token] {
			return AlreadyMember, errors.New("USER_ALREADY_PARTICIPANT")
		}
		f.joined[token] = true
		return Joined, nil
	}
	return f.outcome, f.err
}

var cand = link.Candidate{URL: "https://t.me/+AbC123xyz", Token: "AbC123xyz"}

func newCrawler(t *testing.T, j Joiner, opts Options) (*Crawler, *journal.File) {
	t.Helper()
	links := journal.New(filepath.Join(t.TempDir(), "discovered_groups.txt"))
	return New(j, links, opts, quietLogger()), links
}

func TestDiscoverOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		err     error
		want    Outcome
		state   State
	}{
		{"joined", Joined, nil, Joined, StateJoined},
		{"empty outcome no error means joined", "", nil, Joined, StateJoined},
		{"already member", AlreadyMember, errors.New("already"), AlreadyMember, StateSuppressed},
		{"expired", Expired, errors.New("expired"), Expired, StateSuppressed},
		{"rate limited", RateLimited, errors.New("peer flood"), RateLimited, StateSuppressed},
		{"untyped error", "", errors.New("boom"), OtherFailure, StateSuppressed},
		{"other", OtherFailure, errors.New("x"), OtherFailure, StateSuppressed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, links := newCrawler(t, &fakeJoiner{outcome: tt.outcome, err: tt.err}, Options{Enabled: true})
			res := c.Discover(context.Background(), cand)

			assert.Equal(t, tt.want, res.Outcome)
			assert.Equal(t, tt.state, res.State)

			lines, err := links.Lines()
			require.NoError(t, err)
			assert.Equal(t, []string{cand.URL}, lines)
		})
	}
}

func TestDiscoverRateLimitedStillRecordsLink(t *testing.T) {
	j := &fakeJoiner{outcome: RateLimited, err: &FloodWaitError{Wait: 30 * time.Second}}
	c, links := newCrawler(t, j, Options{Enabled: true})

	res := c.Discover(context.Background(), cand)
	assert.Equal(t, RateLimited, res.Outcome)
	assert.Equal(t, StateSuppressed, res.State)

	lines, err := links.Lines()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://t.me/+AbC123xyz"}, lines)
}

func TestDiscoverFloodWaitStartsCooldown(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	j := &fakeJoiner{outcome: "", err: &FloodWaitError{Wait: time.Minute}}
	c, links := newCrawler(t, j, Options{Enabled: true})
	c.now = func() time.Time { return now }

	first := c.Discover(context.Background(), cand)
	assert.Equal(t, RateLimited, first.Outcome)
	assert.Equal(t, now.Add(time.Minute), c.CooldownUntil())

	now = now.Add(30 * time.Second)
	second := c.Discover(context.Background(), cand)
	assert.Equal(t, RateLimited, second.Outcome)
	assert.ErrorIs(t, second.Err, ErrCoolingDown)
	assert.Len(t, j.calls, 1, "no platform call during cooldown")

	now = now.Add(time.Minute)
	j.err = nil
	j.outcome = Joined
	third := c.Discover(context.Background(), cand)
	assert.Equal(t, Joined, third.Outcome)
	assert.Len(t, j.calls, 2)

	lines, err := links.Lines()
	require.NoError(t, err)
	assert.Len(t, lines, 3)
}

func TestDiscoverIdempotentRejoin(t *testing.T) {
	j := &fakeJoiner{joined: map[string]bool{}}
	c, links := newCrawler(t, j, Options{Enabled: true})

	first := c.Discover(context.Background(), cand)
	assert.Equal(t, StateJoined, first.State)

	linksBefore, err := links.Lines()
	require.NoError(t, err)

	second := c.Discover(context.Background(), cand)
	assert.Equal(t, AlreadyMember, second.Outcome)
	assert.Equal(t, StateSuppressed, second.State)

	linksAfter, err := links.Lines()
	require.NoError(t, err)
	assert.Len(t, linksAfter, len(linksBefore)+1, "exactly one line per discovery")
}

func TestDiscoverPacing(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	j := &fakeJoiner{outcome: Joined}
	c, _ := newCrawler(t, j, Options{Enabled: true, JoinsPerMinute: 1, Burst: 1})
	c.now = func() time.Time { return now }

	assert.Equal(t, Joined, c.Discover(context.Background(), cand).Outcome)

	paced := c.Discover(context.Background(), cand)
	assert.Equal(t, RateLimited, paced.Outcome)
	assert.ErrorIs(t, paced.Err, ErrPaced)
	assert.Len(t, j.calls, 1)

	now = now.Add(61 * time.Second)
	assert.Equal(t, Joined, c.Discover(context.Background(), cand).Outcome)
}

func TestDiscoverDisabled(t *testing.T) {
	j := &fakeJoiner{outcome: Joined}
	c, links := newCrawler(t, j, Options{Enabled: false})

	res := c.Discover(context.Background(), cand)
	assert.Equal(t, StateSuppressed, res.State)
	assert.ErrorIs(t, res.Err, ErrDisabled)
	assert.Empty(t, j.calls)

	lines, err := links.Lines()
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestDiscoverNilJoiner(t *testing.T) {
	c := New(nil, nil, Options{Enabled: true}, quietLogger())
	res := c.Discover(context.Background(), cand)
	assert.Equal(t, StateSuppressed, res.State)
	assert.ErrorIs(t, res.Err, ErrDisabled)
}
