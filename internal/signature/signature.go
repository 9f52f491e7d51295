package signature

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Defaults is the leak-indicator list used when no signatures are configured.
var Defaults = []string{
	"combo", "email:pass", "senha", "login", "database", "db dump",
	"vazamento", "leak", "cpf", "tse", "serasa", "auth", "bradesco",
	"itau", "nubank", "bin", "cc full", "banco de dados", "sql dump",
	"root", "admin", "access", "config", "password",
}

// Set is an ordered, immutable list of lowercase signatures.
// The zero value is an empty set that never matches.
type Set struct {
	terms []string
}

// New builds a Set from terms, lowercasing each and dropping blanks.
// Order is preserved and duplicates are kept.
func New(terms ...string) Set {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	return Set{terms: out}
}

// Read parses one signature per line. Blank lines and lines starting
// with '#' are ignored.
func Read(r io.Reader) ([]string, error) {
	var terms []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read signatures: %w", err)
	}
	return terms, nil
}

// Len returns the number of signatures.
func (s Set) Len() int { return len(s.terms) }

// Terms returns a copy of the signatures in order.
func (s Set) Terms() []string {
	out := make([]string, len(s.terms))
	copy(out, s.terms)
	return out
}

// Normalize prepares raw message text for matching.
func Normalize(raw string) string {
	return strings.ToLower(raw)
}

// Match returns every signature contained in text, in set order.
// text is expected to be normalized already. Plain substring containment:
// "email:pass" matches inside "user@x.com email:pass list".
//
// This is a linear scan per signature. Fine for tens of terms over chat-sized
// messages; swap for a multi-pattern automaton if the set grows into thousands.
func (s Set) Match(text string) []string {
	if text == "" {
		return nil
	}
	var found []string
	for _, term := range s.terms {
		if strings.Contains(text, term) {
			found = append(found, term)
		}
	}
	return found
}
