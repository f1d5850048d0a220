package dosing

import "testing"

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		dosing  ParsedDosing
		wantErr bool
	}{
		{
			name:   "valid simple",
			dosing: ParsedDosing{Shape: ShapeSimple, Dose: 1, Frequency: 2},
		},
		{
			name:    "zero dose",
			dosing:  ParsedDosing{Shape: ShapeSimple, Dose: 0, Frequency: 1},
			wantErr: true,
		},
		{
			name:    "negative frequency",
			dosing:  ParsedDosing{Shape: ShapeSimple, Dose: 1, Frequency: -1},
			wantErr: true,
		},
		{
			name: "simple with schedule",
			dosing: ParsedDosing{
				Shape: ShapeSimple, Dose: 1, Frequency: 1,
				Schedule: []ScheduleEntry{{Dose: 1, Frequency: 1}},
			},
			wantErr: true,
		},
		{
			name: "valid range",
			dosing: ParsedDosing{
				Shape: ShapeRange, Dose: 1, Frequency: 1,
				MaxDose: Float(2),
			},
		},
		{
			name:    "range without max dose",
			dosing:  ParsedDosing{Shape: ShapeRange, Dose: 1, Frequency: 1},
			wantErr: true,
		},
		{
			name: "range with inverted bounds",
			dosing: ParsedDosing{
				Shape: ShapeRange, Dose: 3, Frequency: 1,
				MaxDose: Float(2),
			},
			wantErr: true,
		},
		{
			name: "valid complex",
			dosing: ParsedDosing{
				Shape: ShapeComplex, Dose: 1, Frequency: 1,
				Schedule:         []ScheduleEntry{{Dose: 1, Frequency: 1, TimeOfDay: "morning"}},
				AverageDailyDose: Float(1),
			},
		},
		{
			name: "complex without schedule",
			dosing: ParsedDosing{
				Shape: ShapeComplex, Dose: 1, Frequency: 1,
				AverageDailyDose: Float(1),
			},
			wantErr: true,
		},
		{
			name: "complex without average",
			dosing: ParsedDosing{
				Shape: ShapeComplex, Dose: 1, Frequency: 1,
				Schedule: []ScheduleEntry{{Dose: 1, Frequency: 1}},
			},
			wantErr: true,
		},
		{
			name: "as-needed without average",
			dosing: ParsedDosing{
				Shape: ShapeSimple, Dose: 1, Frequency: 1, PRN: true,
			},
			wantErr: true,
		},
		{
			name: "as-needed with average",
			dosing: ParsedDosing{
				Shape: ShapeSimple, Dose: 1, Frequency: 1, PRN: true,
				AverageDailyDose: Float(1),
			},
		},
		{
			name:    "unknown shape",
			dosing:  ParsedDosing{Shape: "weird", Dose: 1, Frequency: 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dosing.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	d := Default("shake well before use")
	if d.Shape != ShapeSimple || d.Dose != 1 || d.Unit != "unit" || d.Frequency != 1 {
		t.Errorf("unexpected default dosing: %+v", d)
	}
	if d.Instructions != "shake well before use" {
		t.Errorf("expected instructions preserved, got %q", d.Instructions)
	}
	if err := d.Validate(); err != nil {
		t.Errorf("default dosing must validate: %v", err)
	}
}
