// Package dosing defines the structured dosing model produced by SIG
// interpretation.
package dosing

import "errors"

// Shape discriminates the three dosing variants. A ParsedDosing is exactly
// one of simple, range, or complex; the optional fields required by each
// variant are checked by Validate.
type Shape string

const (
	// ShapeSimple is a fixed dose taken at a fixed daily frequency.
	ShapeSimple Shape = "simple"
	// ShapeRange is a dose interval (e.g. 1-2 tablets), typically as-needed.
	ShapeRange Shape = "range"
	// ShapeComplex is a multi-entry schedule: different doses at different
	// times of day or across different day ranges.
	ShapeComplex Shape = "complex"
)

// ScheduleEntry is one line of a complex dosing schedule. Entries are owned
// by their parent ParsedDosing and are never shared between dosings.
type ScheduleEntry struct {
	Dose      float64  `json:"dose"`
	MaxDose   *float64 `json:"max_dose,omitempty"`
	Frequency int      `json:"frequency"`
	TimeOfDay string   `json:"time_of_day,omitempty"`
	DayRange  string   `json:"day_range,omitempty"`
	PRN       bool     `json:"prn,omitempty"`
}

// ParsedDosing is the structured result of interpreting a SIG. The original
// instruction text is preserved verbatim in Instructions.
type ParsedDosing struct {
	Shape            Shape           `json:"shape"`
	Dose             float64         `json:"dose"`
	Unit             string          `json:"unit"`
	Frequency        int             `json:"frequency"`
	MaxDose          *float64        `json:"max_dose,omitempty"`
	Schedule         []ScheduleEntry `json:"schedule,omitempty"`
	PRN              bool            `json:"prn"`
	AverageDailyDose *float64        `json:"average_daily_dose,omitempty"`
	Instructions     string          `json:"instructions"`
}

// IsComplex reports whether the dosing carries a multi-entry schedule.
func (p *ParsedDosing) IsComplex() bool { return p.Shape == ShapeComplex }

// Default returns the degraded dosing used when no pattern matches: one unit
// once daily. Interpretation never fails, it falls back to this.
func Default(instructions string) ParsedDosing {
	return ParsedDosing{
		Shape:        ShapeSimple,
		Dose:         1,
		Unit:         "unit",
		Frequency:    1,
		Instructions: instructions,
	}
}

// Float returns a pointer to v, for the optional dose fields.
func Float(v float64) *float64 { return &v }

// Validate checks the variant invariants. A dosing that fails validation is
// out of contract and must not enter the quantity pipeline.
func (p *ParsedDosing) Validate() error {
	if p.Dose <= 0 {
		return errors.New("dose must be positive")
	}
	if p.Frequency < 0 {
		return errors.New("frequency must be non-negative")
	}
	switch p.Shape {
	case ShapeSimple:
		if len(p.Schedule) != 0 {
			return errors.New("simple dosing must not carry a schedule")
		}
	case ShapeRange:
		if p.MaxDose == nil {
			return errors.New("range dosing requires a max dose")
		}
		if *p.MaxDose < p.Dose {
			return errors.New("max dose must not be below dose")
		}
	case ShapeComplex:
		if len(p.Schedule) == 0 {
			return errors.New("complex dosing requires a non-empty schedule")
		}
		if p.AverageDailyDose == nil {
			return errors.New("complex dosing requires an average daily dose")
		}
	default:
		return errors.New("unknown dosing shape")
	}
	if p.PRN && p.AverageDailyDose == nil {
		return errors.New("as-needed dosing requires an average daily dose")
	}
	return nil
}
