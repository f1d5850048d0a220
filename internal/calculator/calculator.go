// Package calculator wires SIG interpretation, quantity projection, package
// selection, and variance analysis into a single calculation service.
package calculator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/drfirst/go-sigcalc/internal/domain/dispense"
	"github.com/drfirst/go-sigcalc/internal/domain/dosing"
	"github.com/drfirst/go-sigcalc/internal/observability/metrics"
	"github.com/drfirst/go-sigcalc/internal/packaging"
	"github.com/drfirst/go-sigcalc/internal/quantity"
	"github.com/drfirst/go-sigcalc/internal/sig"
	"github.com/drfirst/go-sigcalc/internal/variance"
)

// ValidationError reports an out-of-contract request field. Inputs inside
// the contract never error; they degrade through documented fallbacks.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Config holds calculation policy knobs.
type Config struct {
	// UnusualQuantityCeiling flags totals above this value for review.
	UnusualQuantityCeiling float64
	// StrategyTimeout bounds an injected parse strategy before the
	// rule-based interpreter takes over.
	StrategyTimeout time.Duration
}

// DefaultConfig returns the standard policy.
func DefaultConfig() Config {
	return Config{
		UnusualQuantityCeiling: 1000,
		StrategyTimeout:        2 * time.Second,
	}
}

// Request is a single calculation request. Packages are the candidate set
// for this call only; the calculator never caches them across calls.
type Request struct {
	CalculationID string             `json:"calculation_id,omitempty"`
	PatientID     string             `json:"patient_id,omitempty"`
	DrugName      string             `json:"drug_name,omitempty"`
	NDC           string             `json:"ndc,omitempty"`
	SIGText       string             `json:"sig_text"`
	DaysSupply    int                `json:"days_supply"`
	Packages      []dispense.Package `json:"packages,omitempty"`
}

// Result is the full calculation output. An empty dispense plan means no
// fulfillable package was found.
type Result struct {
	CalculationID string                      `json:"calculation_id"`
	ParsedDosing  dosing.ParsedDosing         `json:"parsed_dosing"`
	TotalQuantity float64                     `json:"total_quantity"`
	Unit          string                      `json:"unit"`
	DispensePlan  []dispense.DispensePlanItem `json:"dispense_plan"`
	Warnings      []dispense.Warning          `json:"warnings"`
	CalculatedAt  time.Time                   `json:"calculated_at"`
}

// Calculator runs the calculation pipeline. It is stateless apart from
// configuration and safe for concurrent use.
type Calculator struct {
	parser  *sig.Parser
	config  Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a calculator. strategy may be nil for rules-only parsing;
// m may be nil when metrics are not wired (tests).
func New(cfg Config, strategy sig.Strategy, m *metrics.Metrics, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UnusualQuantityCeiling <= 0 {
		cfg.UnusualQuantityCeiling = DefaultConfig().UnusualQuantityCeiling
	}
	return &Calculator{
		parser:  sig.NewParser(strategy, cfg.StrategyTimeout, logger),
		config:  cfg,
		logger:  logger,
		metrics: m,
	}
}

// Calculate runs the full pipeline for one request. Only out-of-contract
// input (non-positive days supply) errors; everything else produces a
// result, possibly with an empty plan and warnings.
func (c *Calculator) Calculate(ctx context.Context, req *Request) (*Result, error) {
	tracer := otel.Tracer("calculator")
	ctx, span := tracer.Start(ctx, "calculate")
	defer span.End()
	start := time.Now()

	if req.DaysSupply <= 0 {
		if c.metrics != nil {
			c.metrics.CalculationsFailed.Inc()
		}
		return nil, &ValidationError{Field: "days_supply", Message: "must be a positive integer"}
	}

	calculationID := req.CalculationID
	if calculationID == "" {
		calculationID = uuid.New().String()
	}
	span.SetAttributes(
		attribute.String("calculation_id", calculationID),
		attribute.Int("days_supply", req.DaysSupply),
	)

	parsed := c.parser.Parse(ctx, req.SIGText)

	total, err := quantity.Project(parsed, req.DaysSupply)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CalculationsFailed.Inc()
		}
		return nil, err
	}
	span.SetAttributes(
		attribute.Float64("total_quantity", total),
		attribute.String("unit", parsed.Unit),
		attribute.String("shape", string(parsed.Shape)),
	)

	plan := []dispense.DispensePlanItem{}
	if total > 0 && len(req.Packages) > 0 {
		plan, err = packaging.Select(total, parsed.Unit, req.Packages)
		if err != nil {
			if c.metrics != nil {
				c.metrics.CalculationsFailed.Inc()
			}
			return nil, err
		}
	}

	warnings := variance.Analyze(plan, total)
	warnings = append(warnings, c.reviewWarnings(req, plan, total, parsed.Unit)...)

	c.observe(parsed, plan, warnings, time.Since(start))

	return &Result{
		CalculationID: calculationID,
		ParsedDosing:  parsed,
		TotalQuantity: total,
		Unit:          parsed.Unit,
		DispensePlan:  plan,
		Warnings:      warnings,
		CalculatedAt:  time.Now().UTC(),
	}, nil
}

// reviewWarnings adds the caller-side flags: inactive candidates, targets
// above the review ceiling, and candidate sets that match no package.
func (c *Calculator) reviewWarnings(req *Request, plan []dispense.DispensePlanItem, total float64, unit string) []dispense.Warning {
	var warnings []dispense.Warning

	var inactive []string
	for _, p := range req.Packages {
		if !p.Active {
			inactive = append(inactive, p.NDC)
		}
	}
	if len(inactive) > 0 {
		warnings = append(warnings, dispense.Warning{
			Type:     dispense.WarningInactiveNDC,
			Severity: dispense.SeverityMedium,
			Message:  "inactive packages were excluded from selection",
			Details:  map[string]interface{}{"ndcs": inactive},
		})
	}

	if total > c.config.UnusualQuantityCeiling {
		warnings = append(warnings, dispense.Warning{
			Type:     dispense.WarningUnusualQuantity,
			Severity: dispense.SeverityHigh,
			Message:  "total quantity exceeds the review ceiling",
			Details: map[string]interface{}{
				"total_quantity": total,
				"ceiling":        c.config.UnusualQuantityCeiling,
			},
		})
	}

	if total > 0 && len(req.Packages) > 0 && len(plan) == 0 {
		warnings = append(warnings, dispense.Warning{
			Type:     dispense.WarningPackageMismatch,
			Severity: dispense.SeverityHigh,
			Message:  "no active package matches the dosing unit",
			Details:  map[string]interface{}{"unit": unit},
		})
	}

	return warnings
}

func (c *Calculator) observe(parsed dosing.ParsedDosing, plan []dispense.DispensePlanItem, warnings []dispense.Warning, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.CalculationsTotal.Inc()
	c.metrics.CalculationDuration.Observe(elapsed.Seconds())
	c.metrics.SIGsParsed.WithLabelValues(string(parsed.Shape)).Inc()
	if len(plan) == 0 {
		c.metrics.PlansEmpty.Inc()
	}
	for _, w := range warnings {
		c.metrics.WarningsEmitted.WithLabelValues(string(w.Type)).Inc()
	}
}
