package booking

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/bookingbot/internal/analytics"
	bookingfsm "github.com/aiox-platform/bookingbot/internal/booking"
	"github.com/aiox-platform/bookingbot/internal/followup"
	"github.com/aiox-platform/bookingbot/internal/rentok/rentoktest"
	"github.com/aiox-platform/bookingbot/internal/tools"
	"github.com/aiox-platform/bookingbot/internal/usermemory"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

const user = "web-user-7"

// Monday 19 October 2026, 10:00 IST.
var monday = time.Date(2026, 10, 19, 10, 0, 0, 0, IST)

type fixture struct {
	svc       *Service
	api       *rentoktest.Server
	state     *userstate.Store
	memory    *usermemory.Store
	bookings  *bookingfsm.Store
	followups *followup.Scheduler
	funnel    *analytics.Tracker
}

func setup(t *testing.T, kyc bool) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := &fixture{
		api:       rentoktest.New(t),
		state:     userstate.NewStore(rdb),
		memory:    usermemory.NewStore(rdb),
		bookings:  bookingfsm.NewStore(rdb, bookingfsm.Machine{KYCRequired: kyc}),
		followups: followup.NewScheduler(rdb),
		funnel:    analytics.NewTracker(rdb),
	}
	f.svc = NewService(f.api.Client(), f.state, f.memory, f.bookings, f.followups, f.funnel, kyc)
	f.svc.now = func() time.Time { return monday }

	err := f.state.CacheProperties(context.Background(), user, []userstate.Property{{
		ID:       "p1",
		Name:     "Sunrise Residency",
		PGID:     "pg-p1",
		PGNumber: "1",
		EazyPGID: "ez-p1",
		MinToken: "2000",
		MapURL:   "https://www.google.com/maps?q=19.12,72.84",
	}})
	require.NoError(t, err)
	return f
}

func (f *fixture) call(t *testing.T, fn tools.HandlerFunc, args tools.Args) string {
	t.Helper()
	out, err := fn(context.Background(), tools.Invocation{UserID: user, Args: args})
	require.NoError(t, err)
	return out
}

func (f *fixture) funnelCount(t *testing.T, stage analytics.Stage) int64 {
	t.Helper()
	totals, err := f.funnel.FunnelTotals(context.Background(), 1)
	require.NoError(t, err)
	return totals[string(stage)]
}

func (f *fixture) bookingState(t *testing.T) bookingfsm.State {
	t.Helper()
	rec, err := f.bookings.Get(context.Background(), user)
	require.NoError(t, err)
	return rec.State
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"9876543210", "9876543210", true},
		{"+91 98765 43210", "9876543210", true},
		{"919876543210", "9876543210", true},
		{"09876543210", "9876543210", true},
		{"12345", "12345", false},
	}
	for _, tt := range tests {
		got, ok := NormalizePhone(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestSavePhone(t *testing.T) {
	f := setup(t, false)

	out := f.call(t, f.svc.SavePhone, tools.Args{"phone_number": "123"})
	assert.Contains(t, out, "doesn't look like a valid 10-digit")

	out = f.call(t, f.svc.SavePhone, tools.Args{"phone_number": "+91 98765 43210"})
	assert.Contains(t, out, "ending in **3210**")

	out = f.call(t, f.svc.SavePhone, tools.Args{"phone_number": "9876543210"})
	assert.Equal(t, "Phone number 9876543210 is already saved. Let's continue!", out)

	rec, err := f.memory.Get(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, rec.PhoneCollected)
}

func TestNormalizeDate(t *testing.T) {
	tests := map[string]string{
		"25/12/2026":         "25/12/2026",
		"2026-03-05":         "05/03/2026",
		"05-03-2026":         "05/03/2026",
		"today":              "19/10/2026",
		"tomorrow":           "20/10/2026",
		"day after tomorrow": "21/10/2026",
		"in 3 days":          "22/10/2026",
		"10 days from today": "29/10/2026",
		"monday":             "19/10/2026",
		"next monday":        "26/10/2026",
		"this friday":        "23/10/2026",
		"25th march":         "25/03/2027",
		"december 2nd":       "02/12/2026",
		"5th of next month":  "05/11/2026",
		"21st":               "21/10/2026",
		"whenever suits":     "whenever suits",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeDate(in, monday), in)
	}
}

func TestVisitTime(t *testing.T) {
	got, err := VisitTime("20/10/2026", "11:30 am")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 20, 11, 30, 0, 0, IST), got)

	got, err = VisitTime("20/10/2026", "6 PM")
	require.NoError(t, err)
	assert.Equal(t, 18, got.Hour())

	_, err = VisitTime("someday", "6 PM")
	assert.Error(t, err)
}

func TestScheduleVisit(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()

	out := f.call(t, f.svc.ScheduleVisit, tools.Args{"property_name": "sunrise", "visit_date": "tomorrow", "visit_time": "11:00 AM"})
	assert.Contains(t, out, "Visit scheduled successfully for 'Sunrise Residency' on 20/10/2026 at 11:00 AM (Physical visit).")
	assert.Contains(t, out, "Location: https://www.google.com/maps")

	body := f.api.Bodies("/bookingBot/add-booking")[0]
	assert.Equal(t, "p1", body["property_id"])
	assert.Equal(t, "20/10/2026", body["visit_date"])
	assert.Equal(t, 1, f.api.Calls("/tenant/addLeadFromEazyPGID"))

	rec, err := f.memory.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, rec.VisitsScheduled)

	pending, err := f.followups.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
	assert.Equal(t, int64(1), f.funnelCount(t, analytics.StageVisit))

	out = f.call(t, f.svc.ScheduleVisit, tools.Args{"property_name": "Moonlight", "visit_date": "tomorrow", "visit_time": "11:00 AM"})
	assert.Equal(t, "Property 'Moonlight' not found.", out)
}

func TestPaymentFlow_WithoutKYC(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	prop := tools.Args{"property_name": "Sunrise Residency"}

	out := f.call(t, f.svc.CreatePaymentLink, prop)
	assert.Contains(t, out, "I need your mobile number")

	require.NoError(t, f.state.SetPhone(ctx, user, "9876543210"))

	out = f.call(t, f.svc.ReserveBed, prop)
	assert.Equal(t, "The token payment must be verified before a bed can be reserved.", out)
	assert.Zero(t, f.api.Calls("/bookingBot/reserveProperty"))

	out = f.call(t, f.svc.CreatePaymentLink, prop)
	assert.Contains(t, out, "https://pay.rentok.com/p/abc123")
	assert.Contains(t, out, "Rs. 2000")
	assert.Equal(t, bookingfsm.PaymentPending, f.bookingState(t))

	info, ok, err := f.state.PaymentInfo(ctx, user)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Sunrise Living", info.PGName)
	assert.Equal(t, 2000.0, info.Amount)

	pending, err := f.followups.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	out = f.call(t, f.svc.VerifyPayment, tools.Args{})
	assert.Equal(t, "Payment verified successfully for Sunrise Living. You can now proceed with bed reservation.", out)
	assert.Equal(t, bookingfsm.PaymentVerified, f.bookingState(t))
	pending, err = f.followups.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Equal(t, int64(1), f.funnelCount(t, analytics.StageBooking))

	out = f.call(t, f.svc.VerifyPayment, tools.Args{})
	assert.Equal(t, "No pending payment found. Please generate a payment link first.", out)

	out = f.call(t, f.svc.ReserveBed, prop)
	assert.Equal(t, "Bed reserved successfully at 'Sunrise Residency'!", out)
	assert.Equal(t, bookingfsm.Reserved, f.bookingState(t))
}

func TestConfirmPayment_AdvancesPendingBooking(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	require.NoError(t, f.state.SetPhone(ctx, user, "9876543210"))

	advanced, err := f.svc.ConfirmPayment(ctx, user, "")
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Equal(t, bookingfsm.NotStarted, f.bookingState(t))

	f.call(t, f.svc.CreatePaymentLink, tools.Args{"property_name": "Sunrise Residency"})
	require.Equal(t, bookingfsm.PaymentPending, f.bookingState(t))

	advanced, err = f.svc.ConfirmPayment(ctx, user, "some-other-pg")
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Equal(t, bookingfsm.PaymentPending, f.bookingState(t))

	advanced, err = f.svc.ConfirmPayment(ctx, user, "pg-p1")
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, bookingfsm.PaymentVerified, f.bookingState(t))
	assert.Equal(t, int64(1), f.funnelCount(t, analytics.StageBooking))

	_, ok, err := f.state.PaymentInfo(ctx, user)
	require.NoError(t, err)
	assert.False(t, ok)
	pending, err := f.followups.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	advanced, err = f.svc.ConfirmPayment(ctx, user, "pg-p1")
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Equal(t, int64(1), f.funnelCount(t, analytics.StageBooking))

	out := f.call(t, f.svc.ReserveBed, tools.Args{"property_name": "Sunrise Residency"})
	assert.Equal(t, "Bed reserved successfully at 'Sunrise Residency'!", out)
}

func TestPaymentLink_RequiresKYC(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	require.NoError(t, f.state.SetPhone(ctx, user, "9876543210"))
	prop := tools.Args{"property_name": "Sunrise Residency"}

	out := f.call(t, f.svc.CreatePaymentLink, prop)
	assert.Equal(t, "KYC verification must be completed before a payment link can be created.", out)

	out = f.call(t, f.svc.InitiateKYC, tools.Args{"aadhar_number": "1234"})
	assert.Equal(t, "Invalid Aadhaar number. It must be exactly 12 digits.", out)

	out = f.call(t, f.svc.InitiateKYC, tools.Args{"aadhar_number": "1234 5678 9012"})
	assert.Contains(t, out, "OTP has been sent")
	assert.Equal(t, bookingfsm.KYCPending, f.bookingState(t))

	out = f.call(t, f.svc.VerifyKYC, tools.Args{"otp": rentoktest.RejectedOTP})
	assert.Equal(t, "OTP verification failed: OTP expired. Please try again.", out)
	assert.Equal(t, bookingfsm.KYCPending, f.bookingState(t))

	out = f.call(t, f.svc.VerifyKYC, tools.Args{"otp": "123456"})
	assert.Equal(t, "KYC verification successful! Welcome, Asha Rao.", out)
	assert.Equal(t, bookingfsm.KYCVerified, f.bookingState(t))

	id, ok, err := f.state.Identity(ctx, user)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Female", id.Gender)

	out = f.call(t, f.svc.CreatePaymentLink, prop)
	assert.Contains(t, out, "Payment link generated")
}

func TestPaymentLink_KYCVerifiedElsewhere(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	require.NoError(t, f.state.SetPhone(ctx, user, "9876543210"))
	f.api.Set(func(s *rentoktest.Server) { s.KYCStatus = 1 })

	out := f.call(t, f.svc.CreatePaymentLink, tools.Args{"property_name": "Sunrise Residency"})
	assert.Contains(t, out, "Payment link generated")
	assert.Equal(t, bookingfsm.PaymentPending, f.bookingState(t))
}

func TestCancelBooking_ResetsProgress(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	require.NoError(t, f.state.SetPhone(ctx, user, "9876543210"))
	f.call(t, f.svc.CreatePaymentLink, tools.Args{"property_name": "Sunrise Residency"})

	out := f.call(t, f.svc.CancelBooking, tools.Args{"property_name": "Sunrise Residency"})
	assert.Equal(t, "Booking cancelled for 'Sunrise Residency'.", out)
	assert.Equal(t, bookingfsm.NotStarted, f.bookingState(t))

	pending, err := f.followups.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestTools_KYCGating(t *testing.T) {
	names := func(ts []tools.Tool) []string {
		var out []string
		for _, tl := range ts {
			out = append(out, tl.Name())
		}
		return out
	}
	assert.NotContains(t, names(setup(t, false).svc.Tools()), "initiate_kyc")
	assert.Contains(t, names(setup(t, true).svc.Tools()), "initiate_kyc")
}
