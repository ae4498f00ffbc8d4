package rentok

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
)

// KYCVerified reports whether the user's Aadhaar KYC is complete. The
// status entry is initialised first; that call is best effort.
func (c *Client) KYCVerified(ctx context.Context, userID string) (bool, error) {
	id := url.PathEscape(userID)
	if err := c.get(ctx, "/bookingBotKyc/user-kyc/"+id, nil, nil); err != nil {
		slog.Warn("kyc status init failed", "user_id", userID, "error", err)
	}
	var resp struct {
		Data struct {
			KYCStatus int `json:"kyc_status"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/bookingBotKyc/booking/"+id+"/kyc-status", nil, &resp); err != nil {
		return false, fmt.Errorf("kyc status: %w", err)
	}
	return resp.Data.KYCStatus == 1, nil
}

// SendAadhaarOTP asks the backend to send an OTP for the Aadhaar number.
func (c *Client) SendAadhaarOTP(ctx context.Context, aadhaar, phone string) error {
	body := map[string]string{"aadhar_number": aadhaar, "user_phone_number": phone}
	if err := c.post(ctx, "/checkIn/generateAadharOTP", body, nil); err != nil {
		return fmt.Errorf("generate aadhaar otp: %w", err)
	}
	return nil
}

// OTPError is a rejected OTP; Message is the backend's explanation.
type OTPError struct {
	Message string
}

func (e *OTPError) Error() string { return "otp rejected: " + e.Message }

// KYCResult is the identity returned by a successful OTP verification.
type KYCResult struct {
	Name   string
	Gender string
	Raw    json.RawMessage
}

// VerifyAadhaarOTP checks the OTP. The backend signals rejection with a
// status field of 400 in a 200 response, reported as *OTPError.
func (c *Client) VerifyAadhaarOTP(ctx context.Context, otp, phone string) (KYCResult, error) {
	var resp struct {
		Status  int             `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	body := map[string]string{"otp": otp, "user_phone_number": phone}
	if err := c.post(ctx, "/checkIn/verifyAadharOTP", body, &resp); err != nil {
		return KYCResult{}, fmt.Errorf("verify aadhaar otp: %w", err)
	}
	if resp.Status == 400 {
		msg := resp.Message
		if msg == "" {
			msg = "Invalid OTP"
		}
		return KYCResult{}, &OTPError{Message: msg}
	}
	var id struct {
		Name   Text `json:"name"`
		Gender Text `json:"gender"`
	}
	if len(resp.Data) > 0 {
		_ = json.Unmarshal(resp.Data, &id)
	}
	return KYCResult{Name: string(id.Name), Gender: string(id.Gender), Raw: resp.Data}, nil
}

// UpdateKYC stores the verified KYC payload against the user.
func (c *Client) UpdateKYC(ctx context.Context, userID string, data json.RawMessage) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	body := map[string]any{"user_id": userID, "kyc_data": data}
	if err := c.post(ctx, "/bookingBotKyc/update-kyc", body, nil); err != nil {
		return fmt.Errorf("update kyc: %w", err)
	}
	return nil
}
