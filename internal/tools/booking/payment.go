package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aiox-platform/bookingbot/internal/analytics"
	bookingfsm "github.com/aiox-platform/bookingbot/internal/booking"
	"github.com/aiox-platform/bookingbot/internal/followup"
	"github.com/aiox-platform/bookingbot/internal/rentok"
	"github.com/aiox-platform/bookingbot/internal/tools"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

var (
	paymentLinkSchema = propertySchema("create_payment_link",
		"Create a token-payment link for a property. Needs the user's phone number (and completed KYC when required).")
	verifyPaymentSchema = tools.Schema{
		Name:        "verify_payment",
		Description: "Confirm the token payment once the user says they have paid.",
		Params:      map[string]tools.Param{},
	}
	checkReserveSchema = propertySchema("check_reserve_bed", "Check whether a bed is already reserved for the user at a property.")
	reserveSchema      = propertySchema("reserve_bed", "Reserve a bed at a property after the token payment is verified.")
)

func (s *Service) CreatePaymentLink(ctx context.Context, inv tools.Invocation) (string, error) {
	prop, msg, err := s.property(ctx, inv.UserID, inv.Args.String("property_name"))
	if err != nil || msg != "" {
		return msg, err
	}

	phone, err := s.state.Phone(ctx, inv.UserID)
	if err != nil {
		return "", err
	}
	if phone == "" {
		return "I need your mobile number to generate a payment link. " +
			"Please share your 10-digit Indian mobile number and I'll proceed right away!", nil
	}

	if err := s.syncKYC(ctx, inv.UserID); err != nil {
		return "", err
	}
	if hint, err := s.gate(ctx, inv.UserID, bookingfsm.EventPaymentLinkCreated, fsmProperty(prop)); hint != "" || err != nil {
		return hint, err
	}

	tenant, err := s.api.TenantUUID(ctx, phone, prop.EazyPGID)
	if err != nil {
		slog.Warn("tenant lookup failed", "user_id", inv.UserID, "eazypg_id", prop.EazyPGID, "error", err)
	}
	if tenant == "" {
		s.createLead(ctx, inv.UserID, prop, "", "", "", "")
		if tenant, err = s.api.TenantUUID(ctx, phone, prop.EazyPGID); err != nil {
			return "", err
		}
	}
	if tenant == "" {
		return "Could not generate payment link. Please try again.", nil
	}

	amount := tokenAmount(prop)
	code, pgName, err := s.api.PaymentLink(ctx, tenant, prop.PGID, prop.PGNumber, amount)
	if err != nil {
		return "", err
	}
	if pgName == "" {
		pgName = prop.Name
	}
	link := paymentBaseURL + code

	info := userstate.PaymentInfo{PGName: pgName, PGID: prop.PGID, PGNumber: prop.PGNumber, Amount: amount, ShortLink: code}
	if err := s.state.SetPaymentInfo(ctx, inv.UserID, info); err != nil {
		return "", err
	}
	s.advance(ctx, inv.UserID, bookingfsm.EventPaymentLinkCreated, fsmProperty(prop))

	data := map[string]string{
		"property_name": pgName,
		"pg_id":         prop.PGID,
		"amount":        formatAmount(amount),
		"link":          link,
	}
	if _, err := s.followups.Schedule(ctx, inv.UserID, followup.PaymentPending, data, followup.PaymentReminder); err != nil {
		slog.Warn("payment follow-up not scheduled", "user_id", inv.UserID, "error", err)
	}

	return fmt.Sprintf("Payment link generated for %s: %s\nToken amount: Rs. %s. "+
		"Please complete the payment and let me know once done.", pgName, link, formatAmount(amount)), nil
}

func (s *Service) VerifyPayment(ctx context.Context, inv tools.Invocation) (string, error) {
	info, ok, err := s.state.PaymentInfo(ctx, inv.UserID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "No pending payment found. Please generate a payment link first.", nil
	}
	if hint, err := s.gate(ctx, inv.UserID, bookingfsm.EventPaymentVerified, bookingfsm.Property{}); hint != "" || err != nil {
		return hint, err
	}

	payment := rentok.Payment{UserID: inv.UserID, PGID: info.PGID, PGNumber: info.PGNumber, Amount: info.Amount, ShortLink: info.ShortLink}
	if err := s.api.AddPayment(ctx, payment); err != nil {
		slog.Warn("payment not recorded", "user_id", inv.UserID, "pg_id", info.PGID, "error", err)
	}

	props, err := s.state.Properties(ctx, inv.UserID)
	if err != nil {
		slog.Warn("failed to read property cache", "user_id", inv.UserID, "error", err)
	}
	for _, p := range props {
		if p.PGID == info.PGID && p.PGNumber == info.PGNumber {
			s.createLead(ctx, inv.UserID, p, "Token", "", "", "")
			break
		}
	}

	s.settlePayment(ctx, inv.UserID)
	s.advance(ctx, inv.UserID, bookingfsm.EventPaymentVerified, bookingfsm.Property{})
	return fmt.Sprintf("Payment verified successfully for %s. You can now proceed with bed reservation.", info.PGName), nil
}

// settlePayment drops the pending payment and its reminder and counts the
// booking in the funnel.
func (s *Service) settlePayment(ctx context.Context, userID string) {
	if err := s.state.ClearPaymentInfo(ctx, userID); err != nil {
		slog.Warn("failed to clear payment info", "user_id", userID, "error", err)
	}
	if _, err := s.followups.Cancel(ctx, userID, followup.PaymentPending); err != nil {
		slog.Warn("failed to cancel payment follow-up", "user_id", userID, "error", err)
	}
	s.funnel.TrackFunnel(ctx, userID, analytics.StageBooking)
}

// ConfirmPayment handles a payment the backend already reports as paid. It
// moves the booking to PAYMENT_VERIFIED and reports whether it did; a user
// with no payment pending is left untouched.
func (s *Service) ConfirmPayment(ctx context.Context, userID, pgID string) (bool, error) {
	info, ok, err := s.state.PaymentInfo(ctx, userID)
	if err != nil {
		return false, err
	}
	if ok && pgID != "" && info.PGID != "" && info.PGID != pgID {
		slog.Warn("payment callback for another property", "user_id", userID, "pg_id", pgID, "pending_pg_id", info.PGID)
		return false, nil
	}

	_, err = s.bookings.Fire(ctx, userID, bookingfsm.EventPaymentVerified, bookingfsm.Property{})
	var te *bookingfsm.TransitionError
	if errors.As(err, &te) {
		slog.Info("payment callback ignored", "user_id", userID, "state", te.From)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.settlePayment(ctx, userID)
	return true, nil
}

func (s *Service) CheckReservation(ctx context.Context, inv tools.Invocation) (string, error) {
	prop, msg, err := s.property(ctx, inv.UserID, inv.Args.String("property_name"))
	if err != nil || msg != "" {
		return msg, err
	}
	reserved, err := s.api.Reserve(ctx, inv.UserID, prop.ID, true)
	if err != nil {
		return "", err
	}
	if reserved {
		return fmt.Sprintf("A bed is already reserved for you at '%s'.", prop.Name), nil
	}
	return fmt.Sprintf("No bed reserved yet at '%s'. You can proceed with reservation.", prop.Name), nil
}

func (s *Service) ReserveBed(ctx context.Context, inv tools.Invocation) (string, error) {
	prop, msg, err := s.property(ctx, inv.UserID, inv.Args.String("property_name"))
	if err != nil || msg != "" {
		return msg, err
	}
	if hint, err := s.gate(ctx, inv.UserID, bookingfsm.EventBedReserved, fsmProperty(prop)); hint != "" || err != nil {
		return hint, err
	}
	if _, err := s.api.Reserve(ctx, inv.UserID, prop.ID, false); err != nil {
		return "", err
	}
	s.advance(ctx, inv.UserID, bookingfsm.EventBedReserved, fsmProperty(prop))
	return fmt.Sprintf("Bed reserved successfully at '%s'!", prop.Name), nil
}

func tokenAmount(p userstate.Property) float64 {
	if v, err := strconv.ParseFloat(p.MinToken, 64); err == nil && v > 0 {
		return v
	}
	return defaultTokenAmount
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
