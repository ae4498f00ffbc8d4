package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aiox-platform/bookingbot/internal/tools"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

var savePreferencesSchema = tools.Schema{
	Name:        "save_preferences",
	Description: "Save or update the user's rental preferences. Only the fields given are changed.",
	Params: map[string]tools.Param{
		"location":               {Type: tools.String, Description: "Area, locality or landmark"},
		"city":                   {Type: tools.String},
		"min_budget":             {Type: tools.Number, Description: "Minimum monthly rent in INR"},
		"max_budget":             {Type: tools.Number, Description: "Maximum monthly rent in INR"},
		"move_in_date":           {Type: tools.String},
		"property_type":          {Type: tools.String, Description: "PG, hostel, flat, co-living"},
		"unit_types_available":   {Type: tools.String, Description: "Comma-separated unit types such as 1BHK, 2BHK, ROOM"},
		"pg_available_for":       {Type: tools.String, Enum: []string{"All Boys", "All Girls", "Any"}},
		"sharing_types_enabled":  {Type: tools.String, Description: "Comma-separated sharing counts such as 1,2,3"},
		"amenities":              {Type: tools.String, Description: "Comma-separated amenities"},
		"must_have_amenities":    {Type: tools.String, Description: "Comma-separated amenities the user insists on"},
		"nice_to_have_amenities": {Type: tools.String},
		"deal_breakers":          {Type: tools.String, Description: "Comma-separated things the user refuses, e.g. 'no wifi'"},
		"description":            {Type: tools.String, Description: "Free-form notes about what the user wants"},
		"commute_from":           {Type: tools.String, Description: "Office or college the user commutes to"},
	},
}

func preferencesFromArgs(a tools.Args) userstate.Preferences {
	p := userstate.Preferences{
		Location:     a.String("location"),
		City:         a.String("city"),
		MinBudget:    a.Float("min_budget"),
		MaxBudget:    a.Float("max_budget"),
		MoveInDate:   a.String("move_in_date"),
		PropertyType: a.String("property_type"),
		UnitTypes:    a.String("unit_types_available"),
		AvailableFor: a.String("pg_available_for"),
		SharingTypes: a.String("sharing_types_enabled"),
		Description:  a.String("description"),
		CommuteFrom:  a.String("commute_from"),
	}
	if a.Has("amenities") {
		p.Amenities = a.Strings("amenities")
	}
	if a.Has("must_have_amenities") {
		p.MustHave = a.Strings("must_have_amenities")
	}
	if a.Has("nice_to_have_amenities") {
		p.NiceToHave = a.Strings("nice_to_have_amenities")
	}
	if a.Has("deal_breakers") {
		p.DealBreakers = a.Strings("deal_breakers")
	}
	return p
}

func (s *Service) SavePreferences(ctx context.Context, inv tools.Invocation) (string, error) {
	patch := preferencesFromArgs(inv.Args)
	prefs, err := s.state.MergePreferences(ctx, inv.UserID, patch)
	if err != nil {
		return "", fmt.Errorf("save preferences: %w", err)
	}

	if _, err := s.memory.SetPreferencesComplete(ctx, inv.UserID, prefs.Completeness()); err != nil {
		slog.Warn("failed to update preference completeness", "user_id", inv.UserID, "error", err)
	}
	if len(patch.DealBreakers) > 0 {
		if _, err := s.memory.AddDealBreakers(ctx, inv.UserID, patch.DealBreakers...); err != nil {
			slog.Warn("failed to record deal breakers", "user_id", inv.UserID, "error", err)
		}
	}
	return "Preferences saved: " + describePreferences(prefs), nil
}

func describePreferences(p userstate.Preferences) string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	num := func(k string, v float64) {
		if v > 0 {
			add(k, fmt.Sprintf("%.0f", v))
		}
	}
	add("location", p.Location)
	add("city", p.City)
	num("min_budget", p.MinBudget)
	num("max_budget", p.MaxBudget)
	add("move_in_date", p.MoveInDate)
	add("property_type", p.PropertyType)
	add("unit_types_available", p.UnitTypes)
	add("pg_available_for", p.AvailableFor)
	add("sharing_types_enabled", p.SharingTypes)
	add("amenities", strings.Join(p.Amenities, ", "))
	add("must_have_amenities", strings.Join(p.MustHave, ", "))
	add("nice_to_have_amenities", strings.Join(p.NiceToHave, ", "))
	add("deal_breakers", strings.Join(p.DealBreakers, ", "))
	add("description", p.Description)
	add("commute_from", p.CommuteFrom)
	if len(parts) == 0 {
		return "(none)"
	}
	return strings.Join(parts, "; ")
}
