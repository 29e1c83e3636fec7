package validator

import (
	"testing"

	"nutrition-enrichment/internal/models"
)

func nutrients(cal, p, c, f float64) models.Nutrients {
	return models.Nutrients{
		Calories: models.Float(cal),
		Protein:  models.Float(p),
		Carbs:    models.Float(c),
		Fat:      models.Float(f),
	}
}

func TestValidate_ConsistentRecordPasses(t *testing.T) {
	// 4*10 + 4*30 + 9*5 = 205
	n := nutrients(210, 10, 30, 5)
	rep := Validate(n)
	if !rep.IsValid {
		t.Fatalf("expected valid report, got %+v", rep)
	}
	if len(rep.Issues) != 0 {
		t.Fatalf("expected no issues, got %v", rep.Issues)
	}
}

func TestValidate_CalorieDeviationCorrected(t *testing.T) {
	// macros imply 4*10+4*20+9*5 = 165, stated 600 is way off
	n := nutrients(600, 10, 20, 5)
	rep := Validate(n)
	if rep.IsValid {
		t.Fatalf("expected invalid report, got %+v", rep)
	}
	if rep.Corrections.Calories == nil {
		t.Fatal("expected calorie correction")
	}
	if *rep.Corrections.Calories != 165 {
		t.Fatalf("expected corrected calories 165, got %v", *rep.Corrections.Calories)
	}
}

func TestValidate_CalorieWithinToleranceKept(t *testing.T) {
	// computed 165, ~16% below stated stays untouched
	n := nutrients(196, 10, 20, 5)
	rep := Validate(n)
	if !rep.IsValid || rep.Corrections.Calories != nil {
		t.Fatalf("expected in-tolerance deviation to pass, got %+v", rep)
	}
}

func TestValidate_ToleranceRelativeToStated(t *testing.T) {
	// computed 4*0 + 4*62.5 + 9*0 = 250; |200-250| = 50 > 0.2*200
	n := nutrients(200, 0, 62.5, 0)
	rep := Validate(n)
	if rep.IsValid {
		t.Fatalf("expected flag at 25%% of stated, got %+v", rep)
	}
	if rep.Corrections.Calories == nil || *rep.Corrections.Calories != 250 {
		t.Fatalf("expected correction to 250, got %+v", rep.Corrections)
	}
}

func TestValidate_FiberClampedToCarbs(t *testing.T) {
	n := nutrients(165, 10, 10, 5)
	n.Fiber = models.Float(15)
	rep := Validate(n)
	if rep.IsValid {
		t.Fatalf("expected invalid report, got %+v", rep)
	}
	if rep.Corrections.Fiber == nil || *rep.Corrections.Fiber != 10 {
		t.Fatalf("expected fiber clamped to 10, got %+v", rep.Corrections)
	}
}

func TestValidate_SugarClampedToCarbs(t *testing.T) {
	n := nutrients(165, 10, 10, 5)
	n.Sugar = models.Float(12)
	rep := Validate(n)
	if rep.Corrections.Sugar == nil || *rep.Corrections.Sugar != 10 {
		t.Fatalf("expected sugar clamped to 10, got %+v", rep.Corrections)
	}
}

func TestValidate_NilFieldsSkipped(t *testing.T) {
	// no calories present: the calorie rule cannot fire
	n := models.Nutrients{
		Protein: models.Float(10),
		Carbs:   models.Float(20),
		Fat:     models.Float(5),
	}
	rep := Validate(n)
	if !rep.IsValid {
		t.Fatalf("expected valid report for partial data, got %+v", rep)
	}
}

func TestValidate_ZeroMacrosCorrectedToZero(t *testing.T) {
	// calories with no macros behind them cannot stand
	n := nutrients(500, 0, 0, 0)
	rep := Validate(n)
	if rep.IsValid {
		t.Fatalf("expected zero-macro calories flagged, got %+v", rep)
	}
	if rep.Corrections.Calories == nil || *rep.Corrections.Calories != 0 {
		t.Fatalf("expected correction to 0, got %+v", rep.Corrections)
	}
}

func TestValidate_ZeroStatedCaloriesSkipped(t *testing.T) {
	n := nutrients(0, 10, 20, 5)
	rep := Validate(n)
	if !rep.IsValid {
		t.Fatalf("zero stated calories has no deviation base, got %+v", rep)
	}
}

func TestApplyCorrections(t *testing.T) {
	n := nutrients(600, 10, 20, 5)
	n.Fiber = models.Float(30)
	rep := Validate(n)
	fixed := rep.Apply(n)
	if *fixed.Calories != 165 {
		t.Fatalf("expected calories corrected to 165, got %v", *fixed.Calories)
	}
	if *fixed.Fiber != 20 {
		t.Fatalf("expected fiber corrected to 20, got %v", *fixed.Fiber)
	}
	// original untouched
	if *n.Calories != 600 {
		t.Fatalf("input mutated: %v", *n.Calories)
	}
}
