package models

// Corrections holds safe replacement values produced by the consistency
// validator. A nil field means no correction for it.
type Corrections struct {
	Calories *float64 `json:"calories,omitempty"`
	Fiber    *float64 `json:"fiber,omitempty"`
	Sugar    *float64 `json:"sugar,omitempty"`
}

// ValidationReport is the outcome of nutritional-consistency checks.
// IsValid is true iff no issues were raised.
type ValidationReport struct {
	IsValid     bool        `json:"is_valid"`
	Issues      []string    `json:"issues,omitempty"`
	Corrections Corrections `json:"corrections,omitempty"`
}

// Apply returns a copy of n with all corrections applied. Corrections always
// win over completed values. The processor drops corrections that would
// override trusted pre-existing data before calling Apply; bound clamps
// (fiber, sugar) are always kept so completed records satisfy
// fiber <= carbs and sugar <= carbs by construction.
func (r ValidationReport) Apply(n Nutrients) Nutrients {
	out := n
	if r.Corrections.Calories != nil {
		v := *r.Corrections.Calories
		out.Calories = &v
	}
	if r.Corrections.Fiber != nil {
		v := *r.Corrections.Fiber
		out.Fiber = &v
	}
	if r.Corrections.Sugar != nil {
		v := *r.Corrections.Sugar
		out.Sugar = &v
	}
	return out
}
