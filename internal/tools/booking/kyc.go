package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	bookingfsm "github.com/aiox-platform/bookingbot/internal/booking"
	"github.com/aiox-platform/bookingbot/internal/rentok"
	"github.com/aiox-platform/bookingbot/internal/tools"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

var aadhaarPattern = regexp.MustCompile(`^\d{12}$`)

var (
	kycStatusSchema = tools.Schema{
		Name:        "fetch_kyc_status",
		Description: "Check whether the user has completed Aadhaar KYC.",
		Params:      map[string]tools.Param{},
	}
	initiateKYCSchema = tools.Schema{
		Name:        "initiate_kyc",
		Description: "Send an Aadhaar OTP to start KYC.",
		Params: map[string]tools.Param{
			"aadhar_number": {Type: tools.String, Description: "12-digit Aadhaar number"},
		},
		Required: []string{"aadhar_number"},
	}
	verifyKYCSchema = tools.Schema{
		Name:        "verify_kyc",
		Description: "Verify the Aadhaar OTP the user received.",
		Params: map[string]tools.Param{
			"otp": {Type: tools.String},
		},
		Required: []string{"otp"},
	}
)

func (s *Service) KYCStatus(ctx context.Context, inv tools.Invocation) (string, error) {
	verified, err := s.api.KYCVerified(ctx, inv.UserID)
	if err != nil {
		return "", err
	}
	if verified {
		s.markKYCVerified(ctx, inv.UserID)
		return "KYC verification successful: user is verified.", nil
	}
	return "KYC verification required. Please provide your 12-digit Aadhaar number to begin.", nil
}

func (s *Service) InitiateKYC(ctx context.Context, inv tools.Invocation) (string, error) {
	aadhaar := strings.Join(strings.Fields(inv.Args.String("aadhar_number")), "")
	if !aadhaarPattern.MatchString(aadhaar) {
		return "Invalid Aadhaar number. It must be exactly 12 digits.", nil
	}
	phone, err := s.state.Phone(ctx, inv.UserID)
	if err != nil {
		return "", err
	}
	if phone == "" {
		return "I need your mobile number to send the Aadhaar OTP. " +
			"Please share your 10-digit Indian mobile number first.", nil
	}
	if hint, err := s.gate(ctx, inv.UserID, bookingfsm.EventKYCInitiated, bookingfsm.Property{}); hint != "" || err != nil {
		return hint, err
	}

	if err := s.api.SendAadhaarOTP(ctx, aadhaar, phone); err != nil {
		return "", err
	}
	s.advance(ctx, inv.UserID, bookingfsm.EventKYCInitiated, bookingfsm.Property{})
	return "OTP has been sent to the mobile number linked with your Aadhaar. Please share the OTP to complete verification.", nil
}

func (s *Service) VerifyKYC(ctx context.Context, inv tools.Invocation) (string, error) {
	otp := inv.Args.String("otp")
	if otp == "" {
		return "Please provide the OTP.", nil
	}
	phone, err := s.state.Phone(ctx, inv.UserID)
	if err != nil {
		return "", err
	}
	if phone == "" {
		phone = inv.UserID
	}

	result, err := s.api.VerifyAadhaarOTP(ctx, otp, phone)
	var otpErr *rentok.OTPError
	if errors.As(err, &otpErr) {
		return fmt.Sprintf("OTP verification failed: %s. Please try again.", otpErr.Message), nil
	}
	if err != nil {
		return "", err
	}

	if err := s.api.UpdateKYC(ctx, inv.UserID, result.Raw); err != nil {
		slog.Warn("kyc update failed", "user_id", inv.UserID, "error", err)
	}
	if result.Name != "" || result.Gender != "" {
		if err := s.state.SetIdentity(ctx, inv.UserID, userstate.Identity{Name: result.Name, Gender: result.Gender}); err != nil {
			slog.Warn("failed to store kyc identity", "user_id", inv.UserID, "error", err)
		}
	}
	s.markKYCVerified(ctx, inv.UserID)

	if result.Name != "" {
		return fmt.Sprintf("KYC verification successful! Welcome, %s.", result.Name), nil
	}
	return "KYC verification successful!", nil
}

// markKYCVerified moves a booking that has not reached payment to
// KYC_VERIFIED. Later states already imply it.
func (s *Service) markKYCVerified(ctx context.Context, userID string) {
	err := s.bookings.Check(ctx, userID, bookingfsm.EventKYCVerified, bookingfsm.Property{})
	if err == nil {
		s.advance(ctx, userID, bookingfsm.EventKYCVerified, bookingfsm.Property{})
	}
}

// syncKYC lets a user verified outside this conversation pay without
// repeating KYC.
func (s *Service) syncKYC(ctx context.Context, userID string) error {
	if !s.kycEnabled {
		return nil
	}
	rec, err := s.bookings.Get(ctx, userID)
	if err != nil {
		return err
	}
	if rec.State != bookingfsm.NotStarted && rec.State != bookingfsm.KYCPending {
		return nil
	}
	verified, err := s.api.KYCVerified(ctx, userID)
	if err != nil {
		slog.Warn("kyc status check failed", "user_id", userID, "error", err)
		return nil
	}
	if verified {
		s.markKYCVerified(ctx, userID)
	}
	return nil
}
