package completion

import (
	"strings"
	"testing"

	"nutrition-enrichment/internal/models"
	errs "nutrition-enrichment/pkg/errors"
)

func TestParseResponse_PlainJSON(t *testing.T) {
	raw := `{"calories": 165, "protein": 31, "carbs": 0, "fat": 3.6, "confidence": 90, "reasoning": "standard values"}`
	got, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Nutrients.Calories == nil || *got.Nutrients.Calories != 165 {
		t.Fatalf("unexpected calories: %+v", got.Nutrients.Calories)
	}
	if got.Nutrients.Carbs == nil || *got.Nutrients.Carbs != 0 {
		t.Fatal("explicit zero must survive parsing")
	}
	if got.Nutrients.Fiber != nil {
		t.Fatal("absent field should stay nil")
	}
	if got.Confidence != 90 {
		t.Fatalf("unexpected confidence: %d", got.Confidence)
	}
}

func TestParseResponse_MarkdownFenceStripped(t *testing.T) {
	raw := "```json\n{\"calories\": 100, \"confidence\": 50}\n```"
	got, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Nutrients.Calories == nil || *got.Nutrients.Calories != 100 {
		t.Fatalf("unexpected calories: %+v", got.Nutrients.Calories)
	}
}

func TestParseResponse_NullFieldsStayNil(t *testing.T) {
	raw := `{"calories": null, "protein": 5, "confidence": 40}`
	got, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Nutrients.Calories != nil {
		t.Fatal("null field should be nil")
	}
}

func TestParseResponse_MalformedIsBizError(t *testing.T) {
	_, err := ParseResponse("I cannot help with that.")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errs.Is(err, errs.ErrBiz) {
		t.Fatalf("expected biz error, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "I cannot help") {
		t.Fatalf("expected raw excerpt in error, got %v", err)
	}
}

func TestParseResponse_ConfidenceClamped(t *testing.T) {
	got, err := ParseResponse(`{"confidence": 500}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Confidence != 100 {
		t.Fatalf("expected clamp to 100, got %d", got.Confidence)
	}
}

func TestMerge_NeverOverwrites(t *testing.T) {
	base := models.Nutrients{
		Calories: models.Float(100),
		Sugar:    models.Float(0),
	}
	fill := models.Nutrients{
		Calories: models.Float(999),
		Protein:  models.Float(12),
		Sugar:    models.Float(30),
	}
	out := Merge(base, fill)
	if *out.Calories != 100 {
		t.Fatalf("existing value overwritten: %v", *out.Calories)
	}
	if *out.Sugar != 0 {
		t.Fatal("explicit zero overwritten")
	}
	if out.Protein == nil || *out.Protein != 12 {
		t.Fatalf("missing field not filled: %+v", out.Protein)
	}
	// base untouched
	if base.Protein != nil {
		t.Fatal("merge mutated its input")
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("x", 500)
	if got := Excerpt(long, 200); len(got) != 200 {
		t.Fatalf("expected 200 chars, got %d", len(got))
	}
	if got := Excerpt("  short  ", 200); got != "short" {
		t.Fatalf("expected trimmed input back, got %q", got)
	}
}

func TestPromptData_MissingMarkers(t *testing.T) {
	rec := models.FoodRecord{
		ID:   1,
		Name: "apple",
		Nutrients: models.Nutrients{
			Calories: models.Float(52),
		},
	}
	data := promptData(rec)
	if data["Calories"] != "52" {
		t.Fatalf("expected present value, got %v", data["Calories"])
	}
	if data["Protein"] != "MISSING" {
		t.Fatalf("expected MISSING marker, got %v", data["Protein"])
	}
	if data["Serving"] != "100g" {
		t.Fatalf("expected default serving, got %v", data["Serving"])
	}
}
