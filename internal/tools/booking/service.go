// Package booking implements the booking agent's tools: phone capture,
// visits and calls, KYC, token payment and bed reservation. Steps that
// move a booking forward are gated by the booking state machine.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aiox-platform/bookingbot/internal/analytics"
	bookingfsm "github.com/aiox-platform/bookingbot/internal/booking"
	"github.com/aiox-platform/bookingbot/internal/followup"
	"github.com/aiox-platform/bookingbot/internal/rentok"
	"github.com/aiox-platform/bookingbot/internal/tools"
	"github.com/aiox-platform/bookingbot/internal/usermemory"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

const (
	paymentBaseURL     = "https://pay.rentok.com/p/"
	defaultTokenAmount = 1000
)

type Service struct {
	api        *rentok.Client
	state      *userstate.Store
	memory     *usermemory.Store
	bookings   *bookingfsm.Store
	followups  *followup.Scheduler
	funnel     *analytics.Tracker
	kycEnabled bool
	now        func() time.Time
}

func NewService(api *rentok.Client, state *userstate.Store, memory *usermemory.Store, bookings *bookingfsm.Store, followups *followup.Scheduler, funnel *analytics.Tracker, kycEnabled bool) *Service {
	return &Service{
		api:        api,
		state:      state,
		memory:     memory,
		bookings:   bookings,
		followups:  followups,
		funnel:     funnel,
		kycEnabled: kycEnabled,
		now:        time.Now,
	}
}

// Tools returns the booking tools. The KYC tools are only offered when KYC
// is enabled.
func (s *Service) Tools() []tools.Tool {
	out := []tools.Tool{
		tools.New(savePhoneSchema, s.SavePhone),
		tools.New(visitSchema, s.ScheduleVisit),
		tools.New(callSchema, s.ScheduleCall),
		tools.New(paymentLinkSchema, s.CreatePaymentLink),
		tools.New(verifyPaymentSchema, s.VerifyPayment),
		tools.New(checkReserveSchema, s.CheckReservation),
		tools.New(reserveSchema, s.ReserveBed),
		tools.New(cancelSchema, s.CancelBooking),
		tools.New(rescheduleSchema, s.Reschedule),
	}
	if s.kycEnabled {
		out = append(out,
			tools.New(kycStatusSchema, s.KYCStatus),
			tools.New(initiateKYCSchema, s.InitiateKYC),
			tools.New(verifyKYCSchema, s.VerifyKYC),
		)
	}
	return out
}

var propertyNameParam = tools.Param{Type: tools.String, Description: "Property name exactly as shown in the search results"}

func propertySchema(name, description string) tools.Schema {
	return tools.Schema{
		Name:        name,
		Description: description,
		Params:      map[string]tools.Param{"property_name": propertyNameParam},
		Required:    []string{"property_name"},
	}
}

// property resolves the named property from the user's search cache. A
// non-empty message means the caller should return it to the model.
func (s *Service) property(ctx context.Context, userID, name string) (userstate.Property, string, error) {
	prop, ok, err := tools.Lookup(ctx, s.state, userID, name)
	if err != nil {
		return userstate.Property{}, "", err
	}
	if !ok {
		return userstate.Property{}, fmt.Sprintf("Property '%s' not found.", name), nil
	}
	if prop.ID == "" {
		return userstate.Property{}, "Property ID not available.", nil
	}
	return prop, "", nil
}

// gate checks ev against the booking state machine. An illegal step yields
// the hint the model should relay.
func (s *Service) gate(ctx context.Context, userID string, ev bookingfsm.Event, prop bookingfsm.Property) (string, error) {
	err := s.bookings.Check(ctx, userID, ev, prop)
	var te *bookingfsm.TransitionError
	if errors.As(err, &te) {
		return te.Hint(), nil
	}
	return "", err
}

// advance records a completed step. The backend call already succeeded, so
// a failure here is logged rather than surfaced.
func (s *Service) advance(ctx context.Context, userID string, ev bookingfsm.Event, prop bookingfsm.Property) {
	if _, err := s.bookings.Fire(ctx, userID, ev, prop); err != nil {
		slog.Warn("booking state not advanced", "user_id", userID, "event", ev, "error", err)
	}
}

func fsmProperty(p userstate.Property) bookingfsm.Property {
	return bookingfsm.Property{ID: p.ID, Name: p.Name}
}

// createLead registers the user as a lead at a property with the given
// status. Failures are logged; leads are bookkeeping for the operator.
func (s *Service) createLead(ctx context.Context, userID string, prop userstate.Property, status, date, clock, visitType string) {
	if prop.EazyPGID == "" {
		return
	}
	phone, _ := s.state.Phone(ctx, userID)
	identity, _, _ := s.state.Identity(ctx, userID)
	prefs, _ := s.state.Preferences(ctx, userID)

	gender := identity.Gender
	if gender == "" {
		gender = "Any"
	}
	name := identity.Name
	if name == "" {
		name = phone
	}
	if name == "" {
		name = "Guest"
	}
	budget := prefs.MinBudget
	if budget == 0 {
		budget = prefs.MaxBudget
	}
	rentRange := ""
	if budget > 0 {
		rentRange = fmt.Sprintf("%.0f", budget)
	}

	lead := rentok.Lead{
		EazyPGID:   prop.EazyPGID,
		Phone:      phone,
		Name:       name,
		Gender:     gender,
		RentRange:  rentRange,
		Source:     "Booking Bot",
		VisitDate:  date,
		VisitTime:  clock,
		VisitType:  visitType,
		Status:     status,
		FirebaseID: "cust_" + s.now().In(IST).Format("2006_01_02_15_04_05"),
	}
	if err := s.api.AddLead(ctx, lead); err != nil {
		slog.Warn("lead creation failed", "user_id", userID, "eazypg_id", prop.EazyPGID, "error", err)
	}
}
