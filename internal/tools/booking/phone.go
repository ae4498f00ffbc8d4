package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/aiox-platform/bookingbot/internal/tools"
)

var savePhoneSchema = tools.Schema{
	Name:        "save_phone_number",
	Description: "Save the user's 10-digit Indian mobile number. Required before payment links and KYC.",
	Params: map[string]tools.Param{
		"phone_number": {Type: tools.String, Description: "Mobile number as the user typed it"},
	},
	Required: []string{"phone_number"},
}

// NormalizePhone reduces a number to its 10 local digits, dropping a 91
// country code or a leading 0. It reports false for anything else.
func NormalizePhone(raw string) (string, bool) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		digits = digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		digits = digits[1:]
	}
	return digits, len(digits) == 10
}

func (s *Service) SavePhone(ctx context.Context, inv tools.Invocation) (string, error) {
	raw := inv.Args.String("phone_number")
	phone, ok := NormalizePhone(raw)
	if !ok {
		return fmt.Sprintf("'%s' doesn't look like a valid 10-digit Indian mobile number. "+
			"Please share your number again, e.g. 9876543210.", raw), nil
	}

	existing, err := s.state.Phone(ctx, inv.UserID)
	if err != nil {
		return "", err
	}
	if existing == phone {
		return fmt.Sprintf("Phone number %s is already saved. Let's continue!", phone), nil
	}
	if err := s.state.SetPhone(ctx, inv.UserID, phone); err != nil {
		return "", err
	}
	if _, err := s.memory.SetPhoneCollected(ctx, inv.UserID); err != nil {
		slog.Warn("failed to flag phone collected", "user_id", inv.UserID, "error", err)
	}
	return fmt.Sprintf("Got it! I've saved your mobile number ending in **%s**. "+
		"Let me now proceed with your request.", phone[len(phone)-4:]), nil
}
