// Package packaging selects discrete package units to fulfill a target
// quantity with minimal waste.
package packaging

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/drfirst/go-sigcalc/internal/domain/dispense"
)

// InvalidTargetError reports an out-of-contract target quantity. A zero or
// negative target is a caller error, not an empty result.
type InvalidTargetError struct {
	Target float64
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("target quantity must be positive, got %g", e.Target)
}

// multiPackThreshold is the single-package variance percentage above which
// a multi-package combination is attempted instead.
const multiPackThreshold = 20.0

// unitSynonyms normalizes package unit spellings onto canonical names so
// directory records match parsed dosings.
var unitSynonyms = map[string]string{
	"tablet":      "tablet",
	"tablets":     "tablet",
	"tab":         "tablet",
	"tabs":        "tablet",
	"capsule":     "capsule",
	"capsules":    "capsule",
	"cap":         "capsule",
	"caps":        "capsule",
	"ml":          "ml",
	"milliliter":  "ml",
	"milliliters": "ml",
	"mg":          "mg",
	"g":           "g",
	"unit":        "unit",
	"units":       "unit",
	"puff":        "puff",
	"puffs":       "puff",
	"dose":        "dose",
	"doses":       "dose",
}

// NormalizeUnit lowercases and maps a unit through the synonym table.
// Unknown units pass through unchanged.
func NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if canonical, ok := unitSynonyms[u]; ok {
		return canonical
	}
	return u
}

// Select builds a dispense plan for targetQty in the given unit. Candidates
// must be active, carry a known package size, and match the unit after
// synonym normalization. An empty plan means no fulfillable package exists,
// which is a normal result.
//
// A single package type is preferred: the candidate minimizing overfill
// percentage wins, ties going to the smaller package. Only when the best
// single-package overfill exceeds the threshold does selection fall back to
// a largest-first greedy combination.
func Select(targetQty float64, unit string, packages []dispense.Package) ([]dispense.DispensePlanItem, error) {
	if targetQty <= 0 {
		return nil, &InvalidTargetError{Target: targetQty}
	}

	norm := NormalizeUnit(unit)
	var candidates []dispense.Package
	for _, p := range packages {
		if p.Active && p.QuantityPerPackage > 0 && NormalizeUnit(p.Unit) == norm {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return []dispense.DispensePlanItem{}, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].QuantityPerPackage < candidates[j].QuantityPerPackage
	})

	if item, ok := selectSingle(targetQty, candidates); ok {
		return []dispense.DispensePlanItem{item}, nil
	}
	return selectCombination(targetQty, candidates), nil
}

// selectSingle evaluates each candidate as the sole package type. A
// candidate needs ceil(target/size) packages; the resulting overfill must
// be non-negative, and the candidate with the lowest overfill percentage
// wins. The strict less-than keeps the first (smallest) candidate on ties.
func selectSingle(targetQty float64, candidates []dispense.Package) (dispense.DispensePlanItem, bool) {
	best := -1
	bestVariance := 0.0

	for i, c := range candidates {
		size := float64(c.QuantityPerPackage)
		needed := math.Ceil(targetQty / size)
		variance := needed*size - targetQty
		if variance < 0 {
			continue
		}
		variancePct := variance / targetQty * 100
		if best == -1 || variancePct < bestVariance {
			best = i
			bestVariance = variancePct
		}
	}

	if best == -1 || bestVariance > multiPackThreshold {
		return dispense.DispensePlanItem{}, false
	}

	c := candidates[best]
	size := float64(c.QuantityPerPackage)
	count := int(math.Ceil(targetQty / size))
	total := float64(count) * size
	overfill := total - targetQty

	item := dispense.DispensePlanItem{
		NDC:                c.NDC,
		PackageSize:        c.QuantityPerPackage,
		Count:              count,
		TotalQuantity:      total,
		ExactMatch:         overfill == 0,
		VariancePercentage: &bestVariance,
	}
	if overfill > 0 {
		item.Overfill = overfill
	}
	return item, true
}

// selectCombination fills the target largest-first: whole packages while
// they fit, with the smallest size rounded up to cover the remainder. This
// is an accepted greedy approximation, not optimal bin packing.
func selectCombination(targetQty float64, candidates []dispense.Package) []dispense.DispensePlanItem {
	sorted := make([]dispense.Package, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].QuantityPerPackage > sorted[j].QuantityPerPackage
	})

	plan := make([]dispense.DispensePlanItem, 0, len(sorted))
	remaining := targetQty

	for i, c := range sorted {
		if remaining <= 0 {
			break
		}
		size := float64(c.QuantityPerPackage)
		count := math.Floor(remaining / size)
		if i == len(sorted)-1 && count*size < remaining {
			count = math.Ceil(remaining / size)
		}
		if count == 0 {
			continue
		}

		total := count * size
		item := dispense.DispensePlanItem{
			NDC:           c.NDC,
			PackageSize:   c.QuantityPerPackage,
			Count:         int(count),
			TotalQuantity: total,
		}
		if total > remaining {
			overfill := total - remaining
			variancePct := overfill / remaining * 100
			item.Overfill = overfill
			item.VariancePercentage = &variancePct
		}
		remaining -= total
		plan = append(plan, item)
	}

	return plan
}
