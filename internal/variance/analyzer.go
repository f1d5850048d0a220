// Package variance inspects a dispense plan for overfill and underfill and
// grades each deviation for pharmacist review.
package variance

import (
	"fmt"

	"github.com/drfirst/go-sigcalc/internal/domain/dispense"
)

// Analyze produces one warning per plan item that deviates from the
// quantity it was meant to cover. Severity is graded on the variance
// percentage: above 20 is high, above 10 is medium, anything else low.
func Analyze(plan []dispense.DispensePlanItem, targetQty float64) []dispense.Warning {
	var warnings []dispense.Warning

	for _, item := range plan {
		if item.Overfill > 0 {
			pct := variancePct(item, item.Overfill, targetQty)
			warnings = append(warnings, dispense.Warning{
				Type:     dispense.WarningOverfill,
				Severity: severityFor(pct),
				Message: fmt.Sprintf("dispensed quantity exceeds target by %s (%.1f%%)",
					formatQty(item.Overfill), pct),
				Details: map[string]interface{}{
					"ndc":                 item.NDC,
					"overfill":            item.Overfill,
					"variance_percentage": pct,
				},
			})
		}
		if item.Underfill > 0 {
			pct := variancePct(item, item.Underfill, targetQty)
			warnings = append(warnings, dispense.Warning{
				Type:     dispense.WarningUnderfill,
				Severity: severityFor(pct),
				Message: fmt.Sprintf("dispensed quantity falls short of target by %s (%.1f%%)",
					formatQty(item.Underfill), pct),
				Details: map[string]interface{}{
					"ndc":                 item.NDC,
					"underfill":           item.Underfill,
					"variance_percentage": pct,
				},
			})
		}
	}

	return warnings
}

// variancePct prefers the percentage recorded at selection time and only
// recomputes against the plan target when the item carries none.
func variancePct(item dispense.DispensePlanItem, deviation, targetQty float64) float64 {
	if item.VariancePercentage != nil {
		return *item.VariancePercentage
	}
	if targetQty > 0 {
		return deviation / targetQty * 100
	}
	return 0
}

// severityFor grades a variance percentage. Thresholds are strict: exactly
// 20 percent is medium, exactly 10 percent is low.
func severityFor(pct float64) dispense.Severity {
	switch {
	case pct > 20:
		return dispense.SeverityHigh
	case pct > 10:
		return dispense.SeverityMedium
	default:
		return dispense.SeverityLow
	}
}

func formatQty(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
