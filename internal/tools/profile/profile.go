// Package profile implements the read-only account tools: saved
// preferences, scheduled events and shortlisted properties.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	bookingfsm "github.com/aiox-platform/bookingbot/internal/booking"
	"github.com/aiox-platform/bookingbot/internal/rentok"
	"github.com/aiox-platform/bookingbot/internal/tools"
	"github.com/aiox-platform/bookingbot/internal/usermemory"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

type Service struct {
	api      *rentok.Client
	state    *userstate.Store
	memory   *usermemory.Store
	bookings *bookingfsm.Store
}

func NewService(api *rentok.Client, state *userstate.Store, memory *usermemory.Store, bookings *bookingfsm.Store) *Service {
	return &Service{api: api, state: state, memory: memory, bookings: bookings}
}

func (s *Service) Tools() []tools.Tool {
	return []tools.Tool{
		tools.New(tools.Schema{
			Name:        "fetch_profile_details",
			Description: "Show the user's saved preferences and booking progress.",
			Params:      map[string]tools.Param{},
		}, s.Details),
		tools.New(tools.Schema{
			Name:        "get_scheduled_events",
			Description: "List the user's scheduled visits and calls.",
			Params:      map[string]tools.Param{},
		}, s.Events),
		tools.New(tools.Schema{
			Name:        "get_shortlisted_properties",
			Description: "List the properties the user has shortlisted.",
			Params:      map[string]tools.Param{},
		}, s.Shortlisted),
	}
}

var stateLabels = map[bookingfsm.State]string{
	bookingfsm.KYCPending:      "KYC in progress",
	bookingfsm.KYCVerified:     "KYC verified",
	bookingfsm.PaymentPending:  "token payment pending",
	bookingfsm.PaymentVerified: "token paid, bed not reserved yet",
	bookingfsm.Reserved:        "bed reserved",
}

func (s *Service) Details(ctx context.Context, inv tools.Invocation) (string, error) {
	prefs, err := s.state.Preferences(ctx, inv.UserID)
	if err != nil {
		return "", err
	}
	phone, err := s.state.Phone(ctx, inv.UserID)
	if err != nil {
		return "", err
	}

	var lines []string
	if phone != "" {
		lines = append(lines, "Phone: ******"+phone[len(phone)-4:])
	}
	if rec, err := s.bookings.Get(ctx, inv.UserID); err != nil {
		slog.Warn("failed to read booking state", "user_id", inv.UserID, "error", err)
	} else if label, ok := stateLabels[rec.State]; ok {
		line := "Booking: " + label
		if rec.PropertyName != "" {
			line += " at " + rec.PropertyName
		}
		lines = append(lines, line)
	}

	fields := preferenceLines(prefs)
	if len(fields) == 0 {
		lines = append(lines, "No saved preferences yet. Start a property search to set up your preferences!")
		return strings.Join(lines, "\n"), nil
	}
	lines = append(lines, "Saved preferences:")
	lines = append(lines, fields...)
	return strings.Join(lines, "\n"), nil
}

func preferenceLines(p userstate.Preferences) []string {
	var out []string
	add := func(label, v string) {
		if v != "" {
			out = append(out, fmt.Sprintf("- %s: %s", label, v))
		}
	}
	amount := func(v float64) string {
		if v <= 0 {
			return ""
		}
		return fmt.Sprintf("₹%.0f", v)
	}
	add("Location", p.Location)
	add("City", p.City)
	add("Min Budget", amount(p.MinBudget))
	add("Max Budget", amount(p.MaxBudget))
	add("Move-in Date", p.MoveInDate)
	add("Property Type", p.PropertyType)
	add("Unit Types", p.UnitTypes)
	add("Available For", p.AvailableFor)
	add("Sharing Type", p.SharingTypes)
	add("Amenities", strings.Join(p.Amenities, ", "))
	add("Must Have", strings.Join(p.MustHave, ", "))
	add("Deal Breakers", strings.Join(p.DealBreakers, ", "))
	add("Commute From", p.CommuteFrom)
	add("Description", p.Description)
	return out
}

func (s *Service) Events(ctx context.Context, inv tools.Invocation) (string, error) {
	events, err := s.api.Events(ctx, inv.UserID)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "No scheduled events found. Would you like to schedule a property visit or call?", nil
	}
	lines := []string{"Your scheduled events:"}
	for _, e := range events {
		name := e.PropertyName.String()
		if name == "" {
			name = "Unknown Property"
		}
		line := fmt.Sprintf("- %s: %s on %s at %s", name, e.Type, e.Date, e.Time)
		if e.Status != "" {
			line += fmt.Sprintf(" (Status: %s)", e.Status)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func (s *Service) Shortlisted(ctx context.Context, inv tools.Invocation) (string, error) {
	rec, err := s.memory.Get(ctx, inv.UserID)
	if err != nil {
		return "", err
	}
	if len(rec.PropertiesShortlisted) == 0 {
		return "No shortlisted properties yet. Search for properties and shortlist the ones you like!", nil
	}
	props, err := s.state.Properties(ctx, inv.UserID)
	if err != nil {
		return "", err
	}
	names := make(map[string]string, len(props))
	for _, p := range props {
		names[p.ID] = p.Name
	}

	lines := []string{"Your shortlisted properties:"}
	for i, id := range rec.PropertiesShortlisted {
		name, ok := names[id]
		if !ok {
			name = "a property no longer in your search results"
		}
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, name))
	}
	lines = append(lines, "", "Would you like to see details or schedule a visit for any of these?")
	return strings.Join(lines, "\n"), nil
}
