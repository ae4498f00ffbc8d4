package followup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/bookingbot/internal/events"
	"github.com/aiox-platform/bookingbot/internal/llm"
	"github.com/aiox-platform/bookingbot/internal/usermemory"
)

func setupMiniredis(t *testing.T) (*Scheduler, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewScheduler(client)
	s.now = func() time.Time { return now }
	return s, &now
}

type fakeConv struct {
	msgs map[string][]llm.Message
	err  error
}

func (f *fakeConv) Append(_ context.Context, userID string, msgs ...llm.Message) error {
	if f.err != nil {
		return f.err
	}
	if f.msgs == nil {
		f.msgs = map[string][]llm.Message{}
	}
	f.msgs[userID] = append(f.msgs[userID], msgs...)
	return nil
}

type fakeOut struct{ sent []events.OutboundMessage }

func (f *fakeOut) PublishOutbound(_ context.Context, msg events.OutboundMessage) error {
	f.sent = append(f.sent, msg)
	return nil
}

type fakeMemory struct{ rec usermemory.Record }

func (f fakeMemory) Get(context.Context, string) (usermemory.Record, error) { return f.rec, nil }

func TestScheduler_DueOnlyAfterTrigger(t *testing.T) {
	s, now := setupMiniredis(t)
	ctx := context.Background()

	_, err := s.Schedule(ctx, "web-1", PaymentPending, map[string]string{"property_name": "Sunrise PG"}, PaymentReminder)
	require.NoError(t, err)

	due, err := s.Due(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	*now = now.Add(PaymentReminder)
	due, err = s.Due(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "web-1", due[0].UserID)
	assert.Equal(t, PaymentPending, due[0].Type)

	require.NoError(t, s.Complete(ctx, due[0]))
	n, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduler_RescheduleReplacesSameProperty(t *testing.T) {
	s, _ := setupMiniredis(t)
	ctx := context.Background()
	data := map[string]string{"property_name": "Sunrise PG"}

	_, err := s.Schedule(ctx, "u1", PaymentPending, data, time.Hour)
	require.NoError(t, err)
	_, err = s.Schedule(ctx, "u1", PaymentPending, data, 2*time.Hour)
	require.NoError(t, err)
	_, err = s.Schedule(ctx, "u1", PaymentPending, map[string]string{"property_name": "Blue Nest"}, time.Hour)
	require.NoError(t, err)

	n, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestScheduler_Cancel(t *testing.T) {
	s, _ := setupMiniredis(t)
	ctx := context.Background()

	_, _ = s.Schedule(ctx, "u1", PaymentPending, map[string]string{"property_name": "A"}, time.Hour)
	_, _ = s.Schedule(ctx, "u1", VisitComplete, map[string]string{"property_name": "A"}, time.Hour)
	_, _ = s.Schedule(ctx, "u2", PaymentPending, map[string]string{"property_name": "A"}, time.Hour)

	removed, err := s.Cancel(ctx, "u1", PaymentPending)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSweeper_DeliversByChannel(t *testing.T) {
	s, now := setupMiniredis(t)
	ctx := context.Background()
	conv := &fakeConv{}
	out := &fakeOut{}

	_, _ = s.Schedule(ctx, "web-user", VisitComplete, map[string]string{"property_name": "Sunrise PG"}, 0)
	_, _ = s.Schedule(ctx, "919876543210", PaymentPending, map[string]string{
		"property_name": "Blue Nest", "amount": "1000", "link": "https://pay.example/p/abc",
	}, 0)
	*now = now.Add(time.Second)

	rep, err := NewSweeper(s, conv, out, fakeMemory{}, 50).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Processed)
	assert.Zero(t, rep.Pending)

	require.Len(t, conv.msgs["web-user"], 1)
	text := conv.msgs["web-user"][0].Text()
	assert.True(t, len(text) > len(Marker) && text[:len(Marker)] == Marker)
	assert.Contains(t, text, "How was your visit to Sunrise PG?")

	require.Len(t, out.sent, 1)
	assert.Equal(t, events.KindFollowUp, out.sent[0].Kind)
	assert.Contains(t, out.sent[0].Body, "₹1000")
	assert.Contains(t, out.sent[0].Body, "https://pay.example/p/abc")

	pending, _ := s.Pending(ctx)
	assert.Zero(t, pending)
}

func TestSweeper_FailedDeliveryStaysQueued(t *testing.T) {
	s, now := setupMiniredis(t)
	ctx := context.Background()

	_, _ = s.Schedule(ctx, "web-user", VisitComplete, nil, 0)
	*now = now.Add(time.Second)

	_, _ = s.Schedule(ctx, "web-user", PaymentPending, nil, time.Hour)

	rep, err := NewSweeper(s, &fakeConv{err: errors.New("redis down")}, nil, nil, 50).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, 2, rep.Pending)

	pending, _ := s.Pending(ctx)
	assert.Equal(t, int64(2), pending)
}

func TestSweeper_PhoneUserWithoutChannelIsSkipped(t *testing.T) {
	s, now := setupMiniredis(t)
	ctx := context.Background()

	_, _ = s.Schedule(ctx, "9876543210", VisitComplete, nil, 0)
	*now = now.Add(time.Second)

	rep, err := NewSweeper(s, &fakeConv{}, nil, nil, 50).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)

	pending, _ := s.Pending(ctx)
	assert.Zero(t, pending)
}

func TestRender(t *testing.T) {
	text, ok := Render(Entry{Type: ShortlistIdle, Data: map[string]string{"property_name": "Zolo"}}, 3)
	require.True(t, ok)
	assert.Contains(t, text, "You shortlisted Zolo")
	assert.Contains(t, text, "You have 3 properties shortlisted")

	text, ok = Render(Entry{Type: ShortlistIdle}, 1)
	require.True(t, ok)
	assert.Contains(t, text, "your shortlisted property")
	assert.Contains(t, text, "look for other options nearby")

	_, ok = Render(Entry{Type: "unknown"}, 0)
	assert.False(t, ok)
}

func TestIsPhoneUser(t *testing.T) {
	assert.True(t, IsPhoneUser("9876543210"))
	assert.True(t, IsPhoneUser("919876543210"))
	assert.False(t, IsPhoneUser("web-1234567890"))
	assert.False(t, IsPhoneUser("12345"))
}
