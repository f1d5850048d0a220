package sig

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/go-sigcalc/internal/domain/dosing"
)

// Strategy is a pluggable SIG parser. Substitutes (for example a model-backed
// parser) must produce the same ParsedDosing contract as the rule-based
// interpreter.
type Strategy interface {
	Name() string
	Parse(ctx context.Context, text string) (dosing.ParsedDosing, error)
}

// Name identifies the rule-based interpreter as a strategy.
func (i *Interpreter) Name() string { return "rules" }

// Parse adapts Interpret to the Strategy contract. The error is always nil.
func (i *Interpreter) Parse(_ context.Context, text string) (dosing.ParsedDosing, error) {
	return i.Interpret(text), nil
}

// Parser composes an optional primary strategy with the rule-based
// interpreter. The primary gets a bounded window; any error, timeout, or
// contract violation falls back synchronously to the rules, so parsing as a
// whole never fails.
type Parser struct {
	primary Strategy
	timeout time.Duration
	rules   *Interpreter
	logger  *zap.Logger
}

// NewParser creates a parser. A nil primary means rules only.
func NewParser(primary Strategy, timeout time.Duration, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Parser{
		primary: primary,
		timeout: timeout,
		rules:   NewInterpreter(),
		logger:  logger,
	}
}

// Parse interprets a SIG, preferring the primary strategy when one is
// configured. It never returns an error.
func (p *Parser) Parse(ctx context.Context, text string) dosing.ParsedDosing {
	if p.primary == nil {
		return p.rules.Interpret(text)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type outcome struct {
		parsed dosing.ParsedDosing
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		parsed, err := p.primary.Parse(ctx, text)
		ch <- outcome{parsed: parsed, err: err}
	}()

	select {
	case <-ctx.Done():
		p.logger.Warn("parse strategy timed out, falling back to rules",
			zap.String("strategy", p.primary.Name()))
	case out := <-ch:
		if out.err != nil {
			p.logger.Warn("parse strategy failed, falling back to rules",
				zap.String("strategy", p.primary.Name()),
				zap.Error(out.err))
			break
		}
		if err := out.parsed.Validate(); err != nil {
			p.logger.Warn("parse strategy returned invalid dosing, falling back to rules",
				zap.String("strategy", p.primary.Name()),
				zap.Error(err))
			break
		}
		return out.parsed
	}

	return p.rules.Interpret(text)
}
