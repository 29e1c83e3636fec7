// Package validator checks merged nutrient sets for internal consistency.
// It never rejects a record outright: every inconsistency it recognizes has a
// deterministic correction, and the report carries both.
package validator

import (
	"fmt"
	"math"

	"nutrition-enrichment/internal/models"
)

// Caloric densities per gram of macronutrient (Atwater factors).
const (
	CaloriesPerGramProtein = 4.0
	CaloriesPerGramCarbs   = 4.0
	CaloriesPerGramFat     = 9.0
)

// CalorieTolerance is the allowed relative deviation between stated calories
// and the value computed from macros before a correction is proposed.
const CalorieTolerance = 0.20

// Validate checks a nutrient set and returns a report with issues found and
// the corrections that would resolve them. Fields that are nil are skipped;
// cross-field checks only fire when all of their inputs are present.
func Validate(n models.Nutrients) models.ValidationReport {
	rep := models.ValidationReport{IsValid: true}

	if n.Protein != nil && n.Carbs != nil && n.Fat != nil && n.Calories != nil {
		computed := CaloriesPerGramProtein**n.Protein +
			CaloriesPerGramCarbs**n.Carbs +
			CaloriesPerGramFat**n.Fat
		// Tolerance is relative to the stated calories, not the computed
		// value: a stated 500 with all-zero macros is flagged and corrected
		// to 0.
		if *n.Calories > 0 {
			deviation := math.Abs(*n.Calories-computed) / *n.Calories
			if deviation > CalorieTolerance {
				rep.IsValid = false
				rep.Issues = append(rep.Issues, fmt.Sprintf(
					"calories %.0f deviate %.0f%% from macro-derived %.0f",
					*n.Calories, deviation*100, computed))
				rep.Corrections.Calories = models.Float(math.Round(computed))
			}
		}
	}

	if n.Fiber != nil && n.Carbs != nil && *n.Fiber > *n.Carbs {
		rep.IsValid = false
		rep.Issues = append(rep.Issues, fmt.Sprintf(
			"fiber %.1fg exceeds carbs %.1fg", *n.Fiber, *n.Carbs))
		rep.Corrections.Fiber = models.Float(*n.Carbs)
	}

	if n.Sugar != nil && n.Carbs != nil && *n.Sugar > *n.Carbs {
		rep.IsValid = false
		rep.Issues = append(rep.Issues, fmt.Sprintf(
			"sugar %.1fg exceeds carbs %.1fg", *n.Sugar, *n.Carbs))
		rep.Corrections.Sugar = models.Float(*n.Carbs)
	}

	return rep
}
