package userstate

import "strings"

// Preferences is what a user is looking for. Zero values mean "not given".
type Preferences struct {
	Location     string   `json:"location,omitempty"`
	City         string   `json:"city,omitempty"`
	MinBudget    float64  `json:"min_budget,omitempty"`
	MaxBudget    float64  `json:"max_budget,omitempty"`
	MoveInDate   string   `json:"move_in_date,omitempty"`
	PropertyType string   `json:"property_type,omitempty"`
	UnitTypes    string   `json:"unit_types_available,omitempty"`
	AvailableFor string   `json:"pg_available_for,omitempty"`
	SharingTypes string   `json:"sharing_types_enabled,omitempty"`
	Amenities    []string `json:"amenities,omitempty"`
	MustHave     []string `json:"must_have_amenities,omitempty"`
	NiceToHave   []string `json:"nice_to_have_amenities,omitempty"`
	DealBreakers []string `json:"deal_breakers,omitempty"`
	Description  string   `json:"description,omitempty"`
	CommuteFrom  string   `json:"commute_from,omitempty"`
	Radius       float64  `json:"radius,omitempty"`
}

// Merge copies every field patch provides over p; absent fields keep their
// stored value.
func (p *Preferences) Merge(patch Preferences) {
	mergeString(&p.Location, patch.Location)
	mergeString(&p.City, patch.City)
	mergeString(&p.MoveInDate, patch.MoveInDate)
	mergeString(&p.PropertyType, patch.PropertyType)
	mergeString(&p.UnitTypes, patch.UnitTypes)
	mergeString(&p.AvailableFor, patch.AvailableFor)
	mergeString(&p.SharingTypes, patch.SharingTypes)
	mergeString(&p.Description, patch.Description)
	mergeString(&p.CommuteFrom, patch.CommuteFrom)
	if patch.MinBudget > 0 {
		p.MinBudget = patch.MinBudget
	}
	if patch.MaxBudget > 0 {
		p.MaxBudget = patch.MaxBudget
	}
	if patch.Radius > 0 {
		p.Radius = patch.Radius
	}
	if patch.Amenities != nil {
		p.Amenities = patch.Amenities
	}
	if patch.MustHave != nil {
		p.MustHave = patch.MustHave
	}
	if patch.NiceToHave != nil {
		p.NiceToHave = patch.NiceToHave
	}
	if patch.DealBreakers != nil {
		p.DealBreakers = patch.DealBreakers
	}
}

func mergeString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// Completeness is the fraction of the five core fields that are set:
// location, budget, move-in date, property type and amenities.
func (p Preferences) Completeness() float64 {
	set := 0
	if p.Location != "" {
		set++
	}
	if p.MaxBudget > 0 || p.MinBudget > 0 {
		set++
	}
	if p.MoveInDate != "" {
		set++
	}
	if p.PropertyType != "" || p.UnitTypes != "" {
		set++
	}
	if len(p.Amenities) > 0 || len(p.MustHave) > 0 || len(p.NiceToHave) > 0 {
		set++
	}
	return float64(set) / 5
}

// SplitList turns "wifi, ac ,meals" into a trimmed slice.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
