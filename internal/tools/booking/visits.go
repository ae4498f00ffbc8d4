package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aiox-platform/bookingbot/internal/analytics"
	bookingfsm "github.com/aiox-platform/bookingbot/internal/booking"
	"github.com/aiox-platform/bookingbot/internal/followup"
	"github.com/aiox-platform/bookingbot/internal/rentok"
	"github.com/aiox-platform/bookingbot/internal/tools"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

func visitParams(defaultType string) map[string]tools.Param {
	return map[string]tools.Param{
		"property_name": propertyNameParam,
		"visit_date":    {Type: tools.String, Description: "Date as DD/MM/YYYY or words like 'tomorrow', 'next friday'"},
		"visit_time":    {Type: tools.String, Description: "Time such as '11:00 AM'"},
		"visit_type":    {Type: tools.String, Description: "Defaults to '" + defaultType + "'"},
	}
}

var (
	visitSchema = tools.Schema{
		Name:        "save_visit_time",
		Description: "Schedule a property visit for the user.",
		Params:      visitParams("Physical visit"),
		Required:    []string{"property_name", "visit_date", "visit_time"},
	}
	callSchema = tools.Schema{
		Name:        "save_call_time",
		Description: "Schedule a phone or video call with the property manager.",
		Params:      visitParams("Phone Call"),
		Required:    []string{"property_name", "visit_date", "visit_time"},
	}
	rescheduleSchema = tools.Schema{
		Name:        "reschedule_booking",
		Description: "Change the date, time or type of an existing visit or call.",
		Params:      visitParams("unchanged"),
		Required:    []string{"property_name"},
	}
	cancelSchema = propertySchema("cancel_booking", "Cancel the user's booking at a property and reset its progress.")
)

func (s *Service) ScheduleVisit(ctx context.Context, inv tools.Invocation) (string, error) {
	prop, msg, err := s.property(ctx, inv.UserID, inv.Args.String("property_name"))
	if err != nil || msg != "" {
		return msg, err
	}
	v := s.visit(inv, prop, "Physical visit")
	if err := s.api.AddBooking(ctx, v); err != nil {
		if errors.Is(err, rentok.ErrConflict) {
			return "There is already a scheduled visit for this property or a visit on the same date. Would you like to see your scheduled visits?", nil
		}
		return "", err
	}
	s.createLead(ctx, inv.UserID, prop, "Visit Scheduled", v.Date, v.Time, v.Type)

	s.funnel.TrackFunnel(ctx, inv.UserID, analytics.StageVisit)
	if _, err := s.memory.RecordVisit(ctx, inv.UserID, prop.ID); err != nil {
		slog.Warn("failed to record visit", "user_id", inv.UserID, "error", err)
	}
	s.scheduleVisitFollowUp(ctx, inv.UserID, prop, v)

	out := fmt.Sprintf("Visit scheduled successfully for '%s' on %s at %s (%s).", prop.Name, v.Date, v.Time, v.Type)
	if prop.MapURL != "" {
		out += "\nLocation: " + prop.MapURL
	}
	return out, nil
}

func (s *Service) ScheduleCall(ctx context.Context, inv tools.Invocation) (string, error) {
	prop, msg, err := s.property(ctx, inv.UserID, inv.Args.String("property_name"))
	if err != nil || msg != "" {
		return msg, err
	}
	v := s.visit(inv, prop, "Phone Call")
	if err := s.api.AddBooking(ctx, v); err != nil {
		if errors.Is(err, rentok.ErrConflict) {
			return "There is already a scheduled booking for this property or on the same date. Would you like to see your scheduled events?", nil
		}
		return "", err
	}
	s.createLead(ctx, inv.UserID, prop, "Visit Scheduled", v.Date, v.Time, v.Type)
	return fmt.Sprintf("%s scheduled successfully for '%s' on %s at %s.", v.Type, prop.Name, v.Date, v.Time), nil
}

func (s *Service) Reschedule(ctx context.Context, inv tools.Invocation) (string, error) {
	prop, msg, err := s.property(ctx, inv.UserID, inv.Args.String("property_name"))
	if err != nil || msg != "" {
		return msg, err
	}
	v := rentok.Visit{
		UserID:     inv.UserID,
		PropertyID: prop.ID,
		Time:       inv.Args.String("visit_time"),
		Type:       inv.Args.String("visit_type"),
	}
	if d := inv.Args.String("visit_date"); d != "" {
		v.Date = NormalizeDate(d, s.now())
	}
	if err := s.api.UpdateBooking(ctx, v); err != nil {
		return "", err
	}
	if v.Date != "" && v.Time != "" {
		s.scheduleVisitFollowUp(ctx, inv.UserID, prop, v)
	}

	var changes []string
	if v.Date != "" {
		changes = append(changes, "date: "+v.Date)
	}
	if v.Time != "" {
		changes = append(changes, "time: "+v.Time)
	}
	if v.Type != "" {
		changes = append(changes, "type: "+v.Type)
	}
	summary := "details updated"
	if len(changes) > 0 {
		summary = strings.Join(changes, ", ")
	}
	return fmt.Sprintf("Booking rescheduled for '%s': %s.", prop.Name, summary), nil
}

func (s *Service) CancelBooking(ctx context.Context, inv tools.Invocation) (string, error) {
	prop, msg, err := s.property(ctx, inv.UserID, inv.Args.String("property_name"))
	if err != nil || msg != "" {
		return msg, err
	}
	if err := s.api.CancelBooking(ctx, inv.UserID, prop.ID); err != nil {
		return "", err
	}
	s.advance(ctx, inv.UserID, bookingfsm.EventReset, fsmProperty(prop))
	for _, typ := range []followup.Type{followup.VisitComplete, followup.PaymentPending} {
		if _, err := s.followups.Cancel(ctx, inv.UserID, typ); err != nil {
			slog.Warn("failed to cancel follow-ups", "user_id", inv.UserID, "type", typ, "error", err)
		}
	}
	return fmt.Sprintf("Booking cancelled for '%s'.", prop.Name), nil
}

func (s *Service) visit(inv tools.Invocation, prop userstate.Property, defaultType string) rentok.Visit {
	v := rentok.Visit{
		UserID:       inv.UserID,
		PropertyID:   prop.ID,
		PropertyName: prop.Name,
		Date:         NormalizeDate(inv.Args.String("visit_date"), s.now()),
		Time:         inv.Args.String("visit_time"),
		Type:         inv.Args.String("visit_type"),
	}
	if v.Type == "" {
		v.Type = defaultType
	}
	return v
}

// scheduleVisitFollowUp asks for feedback two hours after the visit.
func (s *Service) scheduleVisitFollowUp(ctx context.Context, userID string, prop userstate.Property, v rentok.Visit) {
	at, err := VisitTime(v.Date, v.Time)
	if err != nil {
		slog.Warn("visit follow-up not scheduled", "user_id", userID, "error", err)
		return
	}
	delay := max(0, at.Sub(s.now())) + followup.AfterVisit
	data := map[string]string{
		"property_name": prop.Name,
		"property_id":   prop.ID,
		"visit_date":    v.Date,
		"visit_time":    v.Time,
	}
	if _, err := s.followups.Schedule(ctx, userID, followup.VisitComplete, data, delay); err != nil {
		slog.Warn("visit follow-up not scheduled", "user_id", userID, "error", err)
	}
}
