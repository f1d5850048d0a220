// Package dispense defines package candidates, dispense plans, and the
// warnings attached to a fulfillment.
package dispense

// Package is a discrete purchasable unit of a drug product, supplied fresh
// per calculation by the NDC directory. QuantityPerPackage at or below zero
// means the size is unknown; such packages are never selected.
type Package struct {
	NDC                string `json:"ndc"`
	Description        string `json:"description,omitempty"`
	Unit               string `json:"unit"`
	QuantityPerPackage int    `json:"quantity_per_package"`
	Active             bool   `json:"active"`
}

// DispensePlanItem is one line of a dispense plan: count packages of a
// single NDC. TotalQuantity is count times package size. Overfill and
// Underfill carry the absolute deviation from the quantity this item was
// meant to cover; VariancePercentage is nil when no variance was computed.
type DispensePlanItem struct {
	NDC                string   `json:"ndc"`
	PackageSize        int      `json:"package_size"`
	Count              int      `json:"count"`
	TotalQuantity      float64  `json:"total_quantity"`
	ExactMatch         bool     `json:"exact_match"`
	Overfill           float64  `json:"overfill,omitempty"`
	Underfill          float64  `json:"underfill,omitempty"`
	VariancePercentage *float64 `json:"variance_percentage,omitempty"`
}

// WarningType classifies fulfillment warnings.
type WarningType string

const (
	WarningOverfill        WarningType = "OVERFILL"
	WarningUnderfill       WarningType = "UNDERFILL"
	WarningInactiveNDC     WarningType = "INACTIVE_NDC"
	WarningPackageMismatch WarningType = "PACKAGE_MISMATCH"
	WarningUnusualQuantity WarningType = "UNUSUAL_QUANTITY"
)

// Severity grades a warning for pharmacist review.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Warning is a single review flag attached to a calculation result.
type Warning struct {
	Type     WarningType            `json:"type"`
	Message  string                 `json:"message"`
	Severity Severity               `json:"severity"`
	Details  map[string]interface{} `json:"details,omitempty"`
}
