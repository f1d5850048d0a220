package sig

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/drfirst/go-sigcalc/internal/domain/dosing"
)

// matcher attempts one parsing tier. A nil return means the tier did not
// recognize the text and the next tier should run.
type matcher func(pc parseContext) *dosing.ParsedDosing

const numberPattern = `(\d+(?:\.\d+)?)`

// unitAlternation covers the dose-unit keywords the interpreter recognizes,
// plural forms included.
const unitAlternation = `tablets?|tabs?|capsules?|caps?|ml|mg|g|units?|puffs?|doses?`

// unitPatterns maps unit keywords onto canonical singular names. Order
// matters: the first match in the text wins.
var unitPatterns = []struct {
	re        *regexp.Regexp
	canonical string
}{
	{regexp.MustCompile(`\btablets?\b`), "tablet"},
	{regexp.MustCompile(`\btabs?\b`), "tablet"},
	{regexp.MustCompile(`\bcapsules?\b`), "capsule"},
	{regexp.MustCompile(`\bcaps?\b`), "capsule"},
	{regexp.MustCompile(`\bml\b`), "ml"},
	{regexp.MustCompile(`\bmg\b`), "mg"},
	{regexp.MustCompile(`\bg\b`), "g"},
	{regexp.MustCompile(`\bunits?\b`), "unit"},
	{regexp.MustCompile(`\bpuffs?\b`), "puff"},
	{regexp.MustCompile(`\bdoses?\b`), "dose"},
}

var prnPhrases = []string{"as needed", "prn", "when needed", "if needed"}

var (
	numberRe     = regexp.MustCompile(numberPattern)
	rangeRe      = regexp.MustCompile(numberPattern + `\s*-\s*` + numberPattern + `\s*(?:` + unitAlternation + `)\b`)
	multiTimeRe  = regexp.MustCompile(numberPattern + `[^.]*?\bmorning\b[^.]*?\band\b[^.]*?` + numberPattern + `[^.]*?\b(?:bedtime|evening|night|pm|dinner)\b`)
	taperingRe   = regexp.MustCompile(numberPattern + `[^.]*?\bon day (\d+)\b[^.]*?\bthen\b[^.]*?` + numberPattern + `[^.]*?\bdaily\b`)
	everyHoursRe = regexp.MustCompile(`every\s+(\d+)\s+hours?`)
)

func extractUnit(text string) string {
	for _, p := range unitPatterns {
		if p.re.MatchString(text) {
			return p.canonical
		}
	}
	return "unit"
}

func detectPRN(text string) bool {
	for _, phrase := range prnPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

func containsAny(text string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// matchRange handles dose intervals like "1-2 tablets". The average daily
// dose is the midpoint of the interval times the daily frequency.
func matchRange(pc parseContext) *dosing.ParsedDosing {
	m := rangeRe.FindStringSubmatch(pc.text)
	if m == nil {
		return nil
	}
	low, _ := strconv.ParseFloat(m[1], 64)
	high, _ := strconv.ParseFloat(m[2], 64)
	freq := rangeFrequency(pc.text)

	return &dosing.ParsedDosing{
		Shape:            dosing.ShapeRange,
		Dose:             low,
		MaxDose:          dosing.Float(high),
		Unit:             pc.unit,
		Frequency:        freq,
		PRN:              pc.prn,
		AverageDailyDose: dosing.Float((low + high) / 2 * float64(freq)),
		Instructions:     pc.raw,
	}
}

// matchMultiTime handles split dosing like "1 tablet in the morning and 1
// at bedtime". Evening, night, pm, and dinner all count as bedtime.
func matchMultiTime(pc parseContext) *dosing.ParsedDosing {
	m := multiTimeRe.FindStringSubmatch(pc.text)
	if m == nil {
		return nil
	}
	morning, _ := strconv.ParseFloat(m[1], 64)
	bedtime, _ := strconv.ParseFloat(m[2], 64)

	return &dosing.ParsedDosing{
		Shape:     dosing.ShapeComplex,
		Dose:      morning,
		Unit:      pc.unit,
		Frequency: 2,
		Schedule: []dosing.ScheduleEntry{
			{Dose: morning, Frequency: 1, TimeOfDay: "morning"},
			{Dose: bedtime, Frequency: 1, TimeOfDay: "bedtime"},
		},
		PRN:              pc.prn,
		AverageDailyDose: dosing.Float(morning + bedtime),
		Instructions:     pc.raw,
	}
}

// matchTapering handles schedules like "2 tablets on day 1, then 1 tablet
// daily". The maintenance dose becomes the dosing's primary dose.
func matchTapering(pc parseContext) *dosing.ParsedDosing {
	m := taperingRe.FindStringSubmatch(pc.text)
	if m == nil {
		return nil
	}
	initial, _ := strconv.ParseFloat(m[1], 64)
	day, _ := strconv.Atoi(m[2])
	maintenance, _ := strconv.ParseFloat(m[3], 64)

	return &dosing.ParsedDosing{
		Shape:     dosing.ShapeComplex,
		Dose:      maintenance,
		Unit:      pc.unit,
		Frequency: 1,
		Schedule: []dosing.ScheduleEntry{
			{Dose: initial, Frequency: 1, DayRange: fmt.Sprintf("day %d", day)},
			{Dose: maintenance, Frequency: 1, DayRange: fmt.Sprintf("days %d+", day+1)},
		},
		PRN: pc.prn,
		// The first-day dose stands in for the daily average, which
		// overstates projections for tapers. TODO: weight the average by day
		// ranges once the changed totals are signed off.
		AverageDailyDose: dosing.Float(initial),
		Instructions:     pc.raw,
	}
}

// matchMealTimes handles "1 tablet with breakfast, lunch and dinner" style
// instructions, expanding to three schedule entries.
func matchMealTimes(pc parseContext) *dosing.ParsedDosing {
	if !strings.Contains(pc.text, "breakfast") || !containsAny(pc.text, "lunch", "dinner", "meals") {
		return nil
	}
	dose := 1.0
	if m := numberRe.FindStringSubmatch(pc.text); m != nil {
		dose, _ = strconv.ParseFloat(m[1], 64)
	}

	return &dosing.ParsedDosing{
		Shape:     dosing.ShapeComplex,
		Dose:      dose,
		Unit:      pc.unit,
		Frequency: 3,
		Schedule: []dosing.ScheduleEntry{
			{Dose: dose, Frequency: 1, TimeOfDay: "breakfast"},
			{Dose: dose, Frequency: 1, TimeOfDay: "lunch"},
			{Dose: dose, Frequency: 1, TimeOfDay: "dinner"},
		},
		PRN:              pc.prn,
		AverageDailyDose: dosing.Float(dose * 3),
		Instructions:     pc.raw,
	}
}

// matchSimple is the terminal tier. It always produces a dosing: the first
// number in the text (or 1), the extracted unit, and a keyword frequency.
func matchSimple(pc parseContext) dosing.ParsedDosing {
	dose := 1.0
	if m := numberRe.FindStringSubmatch(pc.text); m != nil {
		dose, _ = strconv.ParseFloat(m[1], 64)
	}

	parsed := dosing.ParsedDosing{
		Shape:        dosing.ShapeSimple,
		Dose:         dose,
		Unit:         pc.unit,
		Frequency:    simpleFrequency(pc.text),
		PRN:          pc.prn,
		Instructions: pc.raw,
	}
	if pc.prn {
		parsed.AverageDailyDose = dosing.Float(dose)
	}
	return parsed
}

// rangeFrequency resolves the daily frequency for the range tier.
func rangeFrequency(text string) int {
	switch {
	case containsAny(text, "four times", "4x", "qid"):
		return 4
	case containsAny(text, "three times", "3x", "tid"):
		return 3
	case containsAny(text, "twice", "2x", "bid"):
		return 2
	default:
		return 1
	}
}

// simpleFrequency resolves the daily frequency for the simple tier,
// including the "every N hours" form.
func simpleFrequency(text string) int {
	switch {
	case containsAny(text, "four times", "qid"):
		return 4
	case containsAny(text, "three times", "tid"):
		return 3
	case containsAny(text, "twice", "bid"):
		return 2
	}
	if m := everyHoursRe.FindStringSubmatch(text); m != nil {
		if hours, _ := strconv.Atoi(m[1]); hours > 0 {
			return int(math.Round(24 / float64(hours)))
		}
	}
	if containsAny(text, "once", "daily", "qd") {
		return 1
	}
	return 1
}
