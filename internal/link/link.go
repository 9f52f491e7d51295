package link

import (
	"regexp"
	"strings"
)

// DefaultHosts are the invite-link hosts recognised out of the box.
var DefaultHosts = []string{"t.me", "telegram.me"}

// Candidate is an invite link found in message text
type Candidate struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// Extractor finds invite links for a fixed set of hosts
type Extractor struct {
	pattern *regexp.Regexp
}

var defaultExtractor = NewExtractor(DefaultHosts...)

// NewExtractor compiles an extractor for hosts. When no non-blank host is
// given it falls back to DefaultHosts.
func NewExtractor(hosts ...string) *Extractor {
	quoted := quoteHosts(hosts)
	if len(quoted) == 0 {
		quoted = quoteHosts(DefaultHosts)
	}
	expr := `https?://(?i:` + strings.Join(quoted, "|") + `)/(?:joinchat/|\+)([A-Za-z0-9_-]+)`
	return &Extractor{pattern: regexp.MustCompile(expr)}
}

func quoteHosts(hosts []string) []string {
	quoted := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(h))
	}
	return quoted
}

// Extract returns every invite link in raw, in order of appearance.
func (e *Extractor) Extract(raw string) []Candidate {
	matches := e.pattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, Candidate{URL: m[0], Token: m[1]})
	}
	return out
}

// Extract uses the default hosts.
func Extract(raw string) []Candidate {
	return defaultExtractor.Extract(raw)
}

// TokenFromURL recovers the invite token from a previously recorded link.
// The whole of url must be a single link on one of e's hosts.
func (e *Extractor) TokenFromURL(url string) (string, bool) {
	c := e.Extract(url)
	if len(c) != 1 || c[0].URL != url {
		return "", false
	}
	return c[0].Token, true
}

// TokenFromURL uses the default hosts.
func TokenFromURL(url string) (string, bool) {
	return defaultExtractor.TokenFromURL(url)
}
