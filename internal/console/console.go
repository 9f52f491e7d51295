package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/john/leakwatch/internal/alert"
)

var (
	red     = color.New(color.FgHiRed)
	redBold = color.New(color.FgHiRed, color.Bold)
	green   = color.New(color.FgHiGreen)
	yellow  = color.New(color.FgHiYellow)
	blue    = color.New(color.FgHiBlue)
	magenta = color.New(color.FgHiMagenta)
	cyan    = color.New(color.FgHiCyan)
)

// Console prints color-tagged status and alert lines
type Console struct {
	out io.Writer
	mu  sync.Mutex
}

// New creates a console writing to out.
func New(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) line(col *color.Color, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	col.Fprintf(c.out, format, args...)
	fmt.Fprintln(c.out)
}

// Banner prints the startup box.
func (c *Console) Banner() {
	c.line(green, "╔════════════════════════════════════════════╗")
	c.line(green, "║    TELEGRAM THREAT INTELLIGENCE MONITOR    ║")
	c.line(green, "║        Status: Online | Mode: Passive      ║")
	c.line(green, "╚════════════════════════════════════════════╝")
}

// Connecting announces the session login.
func (c *Console) Connecting() {
	c.line(blue, "[*] Initializing secure session...")
}

// Connected shows the account the session runs as.
func (c *Console) Connected(name, handle string) {
	c.line(green, "[+] Connected: %s (@%s)", name, handle)
}

// SignaturesLoaded reports the size of the active signature set.
func (c *Console) SignaturesLoaded(n int) {
	c.line(magenta, "[*] Loaded %d threat signatures", n)
}

// Active signals that events are now being monitored.
func (c *Console) Active() {
	c.line(yellow, "[!] Monitoring active. (Ctrl+C to stop)")
}

// Stopped is the shutdown line.
func (c *Console) Stopped() {
	c.line(red, "[!] Monitoring stopped.")
}

// LinkDetected reports an invite link seen in chat.
func (c *Console) LinkDetected(chat, url string) {
	c.line(blue, "[🔎] Link detected in '%s': %s", chat, url)
}

// Joined reports a successful crawl.
func (c *Console) Joined(url string) {
	c.line(green, "[+] Crawler: gained access to new group via %s", url)
}

// Suppressed reports a join that will not be retried now.
func (c *Console) Suppressed(url, reason string) {
	c.line(yellow, "[-] Crawler: %s suppressed (%s)", url, reason)
}

// Alert renders an alert that has already been written to the log.
func (c *Console) Alert(r alert.Record) {
	switch r.Kind {
	case alert.KindThreatMatch:
		c.mu.Lock()
		defer c.mu.Unlock()
		fmt.Fprintln(c.out)
		redBold.Fprintln(c.out, "🚨 THREAT DETECTED 🚨")
		fmt.Fprintf(c.out, "%s %s\n", yellow.Sprint("Source:"), r.Source)
		fmt.Fprintf(c.out, "%s @%s\n", yellow.Sprint("Actor:"), r.Actor)
		fmt.Fprintf(c.out, "%s %s\n", red.Sprint("Tags:"), strings.Join(r.Tags, ", "))
		fmt.Fprintf(c.out, "%s %s\n", magenta.Sprint("Payload:"), r.Preview)
		fmt.Fprintln(c.out, strings.Repeat("-", 50))
	case alert.KindFileDetected:
		c.line(cyan, "[📂] Suspicious file: %s (in %s)", r.FileName, r.Source)
	}
}

// AlertFailed tells the operator an alert could not be persisted.
func (c *Console) AlertFailed(r alert.Record, err error) {
	c.line(redBold, "[x] Failed to log %s from '%s': %v", r.Kind, r.Source, err)
}
