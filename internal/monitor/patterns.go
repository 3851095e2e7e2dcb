package monitor

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/tchow-twistedxcom/cursor-wrapper/internal/logging"
)

var patternLog = logging.ForComponent(logging.CompMonitor)

// Heuristic selects the built-in busy predicate.
type Heuristic string

const (
	// HeuristicGlyph matches a hexagon spinner glyph (U+2B22 or U+2B21)
	// followed later on the same line by one to three periods.
	HeuristicGlyph Heuristic = "glyph"

	// HeuristicDots matches a capitalized word directly followed by one to
	// three periods, e.g. "Thinking..", regardless of spinner glyph.
	HeuristicDots Heuristic = "dots"
)

var (
	glyphBusyRe = regexp.MustCompile(`[\x{2B22}\x{2B21}].*\.{1,3}`)
	dotsBusyRe  = regexp.MustCompile(`^\s*(?:\S\s+)?[A-Z][a-z]+\.{1,3}(?:\s|$)`)
)

// BusyDetector decides whether a line of plain text is a busy animation frame.
type BusyDetector interface {
	Match(line string) bool
}

// RawPatterns is the uncompiled detection configuration.
// BusyPatterns prefixed with "re:" are compiled as regex; everything else is
// matched with strings.Contains. Extra patterns are OR-ed with the heuristic.
type RawPatterns struct {
	Heuristic    Heuristic
	BusyPatterns []string
}

// ResolvedPatterns is a compiled BusyDetector.
type ResolvedPatterns struct {
	Heuristic   Heuristic
	base        *regexp.Regexp
	BusyStrings []string
	BusyRegexps []*regexp.Regexp
}

// CompilePatterns compiles raw patterns. An empty heuristic means glyph.
// Invalid regex patterns are logged and skipped; an unknown heuristic is an
// error.
func CompilePatterns(raw RawPatterns) (*ResolvedPatterns, error) {
	resolved := &ResolvedPatterns{Heuristic: raw.Heuristic}

	switch raw.Heuristic {
	case "", HeuristicGlyph:
		resolved.Heuristic = HeuristicGlyph
		resolved.base = glyphBusyRe
	case HeuristicDots:
		resolved.base = dotsBusyRe
	default:
		return nil, fmt.Errorf("unknown busy heuristic %q", raw.Heuristic)
	}

	for _, p := range raw.BusyPatterns {
		if p == "" {
			continue
		}
		if expr, ok := strings.CutPrefix(p, "re:"); ok {
			re, err := regexp.Compile(expr)
			if err != nil {
				patternLog.Warn("invalid_busy_regex",
					slog.String("pattern", p),
					slog.String("error", err.Error()))
				continue
			}
			resolved.BusyRegexps = append(resolved.BusyRegexps, re)
		} else {
			resolved.BusyStrings = append(resolved.BusyStrings, p)
		}
	}

	return resolved, nil
}

// DefaultDetector returns the glyph heuristic with no extra patterns.
func DefaultDetector() *ResolvedPatterns {
	return &ResolvedPatterns{Heuristic: HeuristicGlyph, base: glyphBusyRe}
}

// Match reports whether a single line is a busy frame.
func (p *ResolvedPatterns) Match(line string) bool {
	if p.base.MatchString(line) {
		return true
	}
	for _, s := range p.BusyStrings {
		if strings.Contains(line, s) {
			return true
		}
	}
	for _, re := range p.BusyRegexps {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// PlainText strips terminal styling and control sequences from a raw chunk
// and replaces invalid UTF-8 with U+FFFD.
func PlainText(chunk []byte) string {
	return ansi.Strip(strings.ToValidUTF8(string(chunk), "\uFFFD"))
}

// IsBusy reports whether any line of the chunk matches d. Carriage returns
// count as line breaks since spinners redraw in place.
func IsBusy(d BusyDetector, chunk []byte) bool {
	lines := strings.FieldsFunc(PlainText(chunk), func(r rune) bool {
		return r == '\n' || r == '\r'
	})
	for _, line := range lines {
		if d.Match(line) {
			return true
		}
	}
	return false
}
