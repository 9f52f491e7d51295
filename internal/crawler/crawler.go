package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/john/leakwatch/internal/link"
)

// Outcome is what the platform said about a join attempt
type Outcome string

const (
	Joined        Outcome = "joined"
	AlreadyMember Outcome = "already_member"
	Expired       Outcome = "expired"
	RateLimited   Outcome = "rate_limited"
	OtherFailure  Outcome = "other_failure"
)

// State is where a discovered link ends up
type State string

const (
	StateJoined     State = "joined"
	StateSuppressed State = "suppressed"
)

var (
	ErrDisabled    = errors.New("auto-join disabled")
	ErrCoolingDown = errors.New("cooling down after flood wait")
	ErrPaced       = errors.New("local join pacing")
)

// FloodWaitError is returned by a Joiner when the platform asks us to back
// off for a while.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait %s", e.Wait)
}

// Joiner joins a group by invite token. Implementations report the outcome
// even when err is non-nil.
type Joiner interface {
	Join(ctx context.Context, token string) (Outcome, error)
}

// LinkRecorder keeps every discovered link for offline triage
type LinkRecorder interface {
	Append(line string) error
}

// Result is the final word on one discovered link
type Result struct {
	Candidate link.Candidate
	Outcome   Outcome
	State     State
	Err       error
}

// Options tune the crawler
type Options struct {
	Enabled        bool
	JoinsPerMinute float64 // 0 disables local pacing
	Burst          int
}

// Crawler attempts to join groups behind discovered invite links. It never
// retries on its own: a suppressed link stays suppressed until an operator
// replays the links file.
type Crawler struct {
	joiner  Joiner
	links   LinkRecorder
	enabled bool
	limiter *rate.Limiter
	logger  *logrus.Entry
	now     func() time.Time

	mu            sync.Mutex
	cooldownUntil time.Time
}

// New creates a crawler. links may be nil when links are recorded elsewhere.
func New(joiner Joiner, links LinkRecorder, opts Options, logger *logrus.Entry) *Crawler {
	c := &Crawler{
		joiner:  joiner,
		links:   links,
		enabled: opts.Enabled && joiner != nil,
		logger:  logger,
		now:     time.Now,
	}
	if opts.JoinsPerMinute > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.JoinsPerMinute/60), burst)
	}
	return c
}

// Discover records the link, then tries to join. It never blocks on pacing
// and never returns an error: every failure collapses into a suppressed Result.
func (c *Crawler) Discover(ctx context.Context, cand link.Candidate) Result {
	log := c.logger.WithField("url", cand.URL)

	if c.links != nil {
		if err := c.links.Append(cand.URL); err != nil {
			log.WithError(err).Error("Failed to record discovered link")
		}
	}

	res := c.attempt(ctx, cand)

	entry := log.WithField("outcome", res.Outcome)
	if res.Err != nil {
		entry = entry.WithError(res.Err)
	}
	if res.State == StateJoined {
		entry.Info("Joined group via invite link")
	} else {
		entry.Warn("Join suppressed")
	}

	return res
}

func (c *Crawler) attempt(ctx context.Context, cand link.Candidate) Result {
	res := Result{Candidate: cand, State: StateSuppressed}

	if !c.enabled {
		res.Outcome, res.Err = OtherFailure, ErrDisabled
		return res
	}

	now := c.now()

	c.mu.Lock()
	cooling := now.Before(c.cooldownUntil)
	c.mu.Unlock()
	if cooling {
		res.Outcome, res.Err = RateLimited, ErrCoolingDown
		return res
	}

	if c.limiter != nil && !c.limiter.AllowN(now, 1) {
		res.Outcome, res.Err = RateLimited, ErrPaced
		return res
	}

	outcome, err := c.joiner.Join(ctx, cand.Token)

	var flood *FloodWaitError
	if errors.As(err, &flood) {
		c.mu.Lock()
		if until := now.Add(flood.Wait); until.After(c.cooldownUntil) {
			c.cooldownUntil = until
		}
		c.mu.Unlock()
		outcome = RateLimited
	}

	switch {
	case outcome == "" && err != nil:
		outcome = OtherFailure
	case outcome == "":
		outcome = Joined
	}

	res.Outcome, res.Err = outcome, err
	if outcome == Joined {
		res.State = StateJoined
	}
	return res
}

// CooldownUntil reports when platform-imposed backoff ends.
func (c *Crawler) CooldownUntil() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cooldownUntil
}
