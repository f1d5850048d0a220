// Package quantity projects a parsed dosing over a days' supply into the
// total quantity to dispense.
package quantity

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/drfirst/go-sigcalc/internal/domain/dosing"
)

// InvalidDaysSupplyError reports an out-of-contract days' supply. Callers
// are expected to validate upstream; this is a programming error, not a
// degraded input.
type InvalidDaysSupplyError struct {
	Days int
}

func (e *InvalidDaysSupplyError) Error() string {
	return fmt.Sprintf("days supply must be a positive integer, got %d", e.Days)
}

var (
	dayRe       = regexp.MustCompile(`^day\s+(\d+)$`)
	daysRangeRe = regexp.MustCompile(`^days\s+(\d+)\s*-\s*(\d+)$`)
	daysOpenRe  = regexp.MustCompile(`^days\s+(\d+)\+$`)
)

// Project computes the total dispense quantity for a dosing over daysSupply
// days. It is a pure function: identical inputs always yield identical
// results.
func Project(parsed dosing.ParsedDosing, daysSupply int) (float64, error) {
	if daysSupply <= 0 {
		return 0, &InvalidDaysSupplyError{Days: daysSupply}
	}

	switch {
	case parsed.PRN:
		return projectAsNeeded(parsed, daysSupply), nil
	case parsed.IsComplex():
		return projectSchedule(parsed, daysSupply), nil
	default:
		return parsed.Dose * float64(parsed.Frequency) * float64(daysSupply), nil
	}
}

// projectAsNeeded estimates as-needed consumption at half the labeled
// frequency (or two doses a day when none is labeled), rounded up. The
// estimate is deliberately conservative.
func projectAsNeeded(parsed dosing.ParsedDosing, daysSupply int) float64 {
	avgDose := parsed.Dose
	if parsed.AverageDailyDose != nil {
		avgDose = *parsed.AverageDailyDose
	}

	estimatedFrequency := 2.0
	if parsed.Frequency > 0 {
		estimatedFrequency = float64(parsed.Frequency) * 0.5
	}

	return math.Ceil(avgDose * estimatedFrequency * float64(daysSupply))
}

// projectSchedule sums each schedule entry over the days it covers. Entries
// without a day range apply to the whole supply.
func projectSchedule(parsed dosing.ParsedDosing, daysSupply int) float64 {
	total := 0.0
	for _, entry := range parsed.Schedule {
		days := daysSupply
		if entry.DayRange != "" {
			start, end := resolveDayRange(entry.DayRange, daysSupply)
			days = end - start + 1
			if days < 0 {
				days = 0
			}
		}
		total += entry.Dose * float64(entry.Frequency) * float64(days)
	}
	return total
}

// resolveDayRange maps the day-range grammar onto an inclusive interval
// clamped to [1, daysSupply]:
//
//	"day N"    -> [N, N]
//	"days N-M" -> [N, M]
//	"days N+"  -> [N, daysSupply]
//
// Unrecognized text covers the whole supply; the grammar degrades rather
// than erroring.
func resolveDayRange(s string, daysSupply int) (int, int) {
	s = strings.TrimSpace(strings.ToLower(s))

	if m := dayRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return clampStart(n), min(n, daysSupply)
	}
	if m := daysRangeRe.FindStringSubmatch(s); m != nil {
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		return clampStart(start), min(end, daysSupply)
	}
	if m := daysOpenRe.FindStringSubmatch(s); m != nil {
		start, _ := strconv.Atoi(m[1])
		return clampStart(start), daysSupply
	}
	return 1, daysSupply
}

// clampStart keeps the interval start at 1 or above. The end is clamped by
// the caller; a start past the supply produces an empty interval.
func clampStart(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
