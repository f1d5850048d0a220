// Package integration exercises the full calculation pipeline: SIG
// interpretation through quantity projection, package selection, and
// variance analysis.
package integration

import (
	"context"
	"testing"

	"github.com/drfirst/go-sigcalc/internal/calculator"
	"github.com/drfirst/go-sigcalc/internal/domain/dispense"
	"github.com/drfirst/go-sigcalc/internal/domain/dosing"
)

func TestPipelineSimpleTwiceDaily(t *testing.T) {
	calc := calculator.New(calculator.DefaultConfig(), nil, nil, nil)

	result, err := calc.Calculate(context.Background(), &calculator.Request{
		SIGText:    "Take 1 tablet twice daily",
		DaysSupply: 30,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.TotalQuantity != 60 {
		t.Errorf("expected total 60, got %g", result.TotalQuantity)
	}
	if result.Unit != "tablet" {
		t.Errorf("expected unit tablet, got %s", result.Unit)
	}
	if result.ParsedDosing.IsComplex() {
		t.Error("expected simple dosing")
	}
}

func TestPipelineMorningAndBedtime(t *testing.T) {
	calc := calculator.New(calculator.DefaultConfig(), nil, nil, nil)

	result, err := calc.Calculate(context.Background(), &calculator.Request{
		SIGText:    "Take 1 tablet in the morning and 1 at bedtime",
		DaysSupply: 30,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.ParsedDosing.IsComplex() {
		t.Fatal("expected complex dosing")
	}
	if len(result.ParsedDosing.Schedule) != 2 {
		t.Fatalf("expected 2 schedule entries, got %d", len(result.ParsedDosing.Schedule))
	}
	morning, bedtime := result.ParsedDosing.Schedule[0], result.ParsedDosing.Schedule[1]
	if morning.TimeOfDay != "morning" || morning.Dose != 1 {
		t.Errorf("unexpected morning entry: %+v", morning)
	}
	if bedtime.TimeOfDay != "bedtime" || bedtime.Dose != 1 {
		t.Errorf("unexpected bedtime entry: %+v", bedtime)
	}
	if result.TotalQuantity != 60 {
		t.Errorf("expected total 60, got %g", result.TotalQuantity)
	}
}

func TestPipelineExactPackageSelection(t *testing.T) {
	calc := calculator.New(calculator.DefaultConfig(), nil, nil, nil)

	result, err := calc.Calculate(context.Background(), &calculator.Request{
		SIGText:    "Take 1 tablet twice daily",
		DaysSupply: 30,
		Packages: []dispense.Package{
			{NDC: "ndc-30", Unit: "tablet", QuantityPerPackage: 30, Active: true},
			{NDC: "ndc-90", Unit: "tablet", QuantityPerPackage: 90, Active: true},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.DispensePlan) != 1 {
		t.Fatalf("expected 1 plan item, got %+v", result.DispensePlan)
	}
	item := result.DispensePlan[0]
	if item.PackageSize != 30 || item.Count != 2 {
		t.Errorf("expected 2x30, got %+v", item)
	}
	if !item.ExactMatch {
		t.Error("expected exact match")
	}
	if item.VariancePercentage == nil || *item.VariancePercentage != 0 {
		t.Errorf("expected variance 0, got %v", item.VariancePercentage)
	}
}

func TestPipelineOverfillAtThreshold(t *testing.T) {
	calc := calculator.New(calculator.DefaultConfig(), nil, nil, nil)

	// 100 tablets against 30-packs: 4 packs, 20 overfill, exactly 20%
	result, err := calc.Calculate(context.Background(), &calculator.Request{
		SIGText:    "Take 1 tablet daily",
		DaysSupply: 100,
		Packages: []dispense.Package{
			{NDC: "ndc-30", Unit: "tablet", QuantityPerPackage: 30, Active: true},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.DispensePlan) != 1 {
		t.Fatalf("expected 1 plan item, got %+v", result.DispensePlan)
	}
	item := result.DispensePlan[0]
	if item.Count != 4 || item.TotalQuantity != 120 || item.Overfill != 20 {
		t.Errorf("expected 4x30 with overfill 20, got %+v", item)
	}

	if len(result.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %+v", result.Warnings)
	}
	w := result.Warnings[0]
	if w.Type != dispense.WarningOverfill {
		t.Errorf("expected overfill warning, got %s", w.Type)
	}
	// Exactly 20 percent: the high threshold is strict
	if w.Severity != dispense.SeverityMedium {
		t.Errorf("expected medium severity, got %s", w.Severity)
	}
}

func TestPipelineAsNeededRange(t *testing.T) {
	calc := calculator.New(calculator.DefaultConfig(), nil, nil, nil)

	result, err := calc.Calculate(context.Background(), &calculator.Request{
		SIGText:    "Take 1-2 tablets as needed",
		DaysSupply: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed := result.ParsedDosing
	if parsed.Shape != dosing.ShapeRange {
		t.Fatalf("expected range shape, got %s", parsed.Shape)
	}
	if parsed.Dose != 1 {
		t.Errorf("expected dose 1, got %g", parsed.Dose)
	}
	if parsed.MaxDose == nil || *parsed.MaxDose != 2 {
		t.Errorf("expected max dose 2, got %v", parsed.MaxDose)
	}
	if parsed.Frequency != 1 {
		t.Errorf("expected frequency 1, got %d", parsed.Frequency)
	}
	if !parsed.PRN {
		t.Error("expected prn true")
	}
	if parsed.AverageDailyDose == nil || *parsed.AverageDailyDose != 1.5 {
		t.Errorf("expected average daily dose 1.5, got %v", parsed.AverageDailyDose)
	}
	if result.TotalQuantity != 8 {
		t.Errorf("expected total 8, got %g", result.TotalQuantity)
	}
}

// A full prescription-to-plan pass with a realistic candidate set.
func TestPipelineEndToEnd(t *testing.T) {
	calc := calculator.New(calculator.DefaultConfig(), nil, nil, nil)

	result, err := calc.Calculate(context.Background(), &calculator.Request{
		CalculationID: "rx-2024-0042",
		PatientID:     "patient-17",
		DrugName:      "Lisinopril 10mg",
		NDC:           "00071-0156-23",
		SIGText:       "Take 1 tablet in the morning and 1 at bedtime",
		DaysSupply:    30,
		Packages: []dispense.Package{
			{NDC: "00071-0156-23", Unit: "tablet", QuantityPerPackage: 30, Active: true},
			{NDC: "00071-0156-40", Unit: "tablet", QuantityPerPackage: 100, Active: true},
			{NDC: "00071-0156-99", Unit: "tablet", QuantityPerPackage: 500, Active: false},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.CalculationID != "rx-2024-0042" {
		t.Errorf("expected calculation id preserved, got %s", result.CalculationID)
	}
	if result.TotalQuantity != 60 {
		t.Errorf("expected total 60, got %g", result.TotalQuantity)
	}
	if len(result.DispensePlan) != 1 {
		t.Fatalf("expected 1 plan item, got %+v", result.DispensePlan)
	}
	if result.DispensePlan[0].NDC != "00071-0156-23" || result.DispensePlan[0].Count != 2 {
		t.Errorf("expected 2x30 of the exact NDC, got %+v", result.DispensePlan[0])
	}

	// The inactive 500-count bottle should be flagged but not selected
	foundInactive := false
	for _, w := range result.Warnings {
		if w.Type == dispense.WarningInactiveNDC {
			foundInactive = true
		}
	}
	if !foundInactive {
		t.Errorf("expected inactive NDC warning, got %+v", result.Warnings)
	}
}
