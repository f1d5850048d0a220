// Package sig interprets free-text prescription instructions (SIGs) into
// structured dosing schedules.
//
// The interpreter is an ordered list of matchers tried in priority order:
// dose range, morning/bedtime split, tapering, meal times, then a generic
// simple matcher that always succeeds. Interpretation is total: any input,
// including garbage, yields a usable dosing.
package sig

import (
	"strings"

	"github.com/drfirst/go-sigcalc/internal/domain/dosing"
)

// Interpreter is the deterministic rule-based SIG parser. It holds no state
// and is safe for concurrent use.
type Interpreter struct {
	matchers []matcher
}

// NewInterpreter creates an interpreter with the standard matcher order.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		matchers: []matcher{
			matchRange,
			matchMultiTime,
			matchTapering,
			matchMealTimes,
		},
	}
}

// Interpret parses instruction text. It never fails: the first matching
// tier wins, and input that matches no tier degrades through the simple
// matcher, bottoming out at one unit once daily.
func (i *Interpreter) Interpret(text string) dosing.ParsedDosing {
	pc := newParseContext(text)
	for _, m := range i.matchers {
		if parsed := m(pc); parsed != nil {
			return *parsed
		}
	}
	return matchSimple(pc)
}

// parseContext carries the normalized text plus the unit and as-needed
// signals, which are extracted once and shared by every matcher.
type parseContext struct {
	raw  string
	text string
	unit string
	prn  bool
}

func newParseContext(raw string) parseContext {
	text := strings.ToLower(strings.TrimSpace(raw))
	return parseContext{
		raw:  raw,
		text: text,
		unit: extractUnit(text),
		prn:  detectPRN(text),
	}
}
