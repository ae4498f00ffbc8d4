package rentok

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aiox-platform/bookingbot/internal/retry"
)

// Visit is a scheduled physical visit, phone call or video tour.
type Visit struct {
	UserID       string `json:"user_id"`
	PropertyID   string `json:"property_id"`
	PropertyName string `json:"property_name,omitempty"`
	Date         string `json:"visit_date,omitempty"`
	Time         string `json:"visit_time,omitempty"`
	Type         string `json:"visit_type,omitempty"`
}

// AddBooking schedules a visit. A 400 from the backend means the slot or
// property is already booked and is reported as ErrConflict.
func (c *Client) AddBooking(ctx context.Context, v Visit) error {
	err := c.post(ctx, "/bookingBot/add-booking", v, nil)
	var se *retry.StatusError
	if errors.As(err, &se) && se.Code == http.StatusBadRequest {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("add booking: %w", err)
	}
	return nil
}

// UpdateBooking changes the date, time or type of a booking. Empty fields are
// left unchanged.
func (c *Client) UpdateBooking(ctx context.Context, v Visit) error {
	if err := c.post(ctx, "/bookingBot/update-booking", v, nil); err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	return nil
}

func (c *Client) CancelBooking(ctx context.Context, userID, propertyID string) error {
	body := map[string]string{"user_id": userID, "property_id": propertyID}
	if err := c.post(ctx, "/bookingBot/cancel-booking", body, nil); err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	return nil
}

// Event is a booking as listed on the user's schedule.
type Event struct {
	PropertyName Text `json:"property_name"`
	Date         Text `json:"visit_date"`
	Time         Text `json:"visit_time"`
	Type         Text `json:"visit_type"`
	Status       Text `json:"status"`
}

func (c *Client) Events(ctx context.Context, userID string) ([]Event, error) {
	var resp struct {
		Data []Event `json:"data"`
	}
	if err := c.get(ctx, "/bookingBot/booking/"+url.PathEscape(userID)+"/events", nil, &resp); err != nil {
		return nil, fmt.Errorf("scheduled events: %w", err)
	}
	return resp.Data, nil
}

// Lead is the tenant lead recorded with the property operator.
type Lead struct {
	EazyPGID   string `json:"eazypg_id"`
	Phone      string `json:"phone"`
	Name       string `json:"name"`
	Gender     string `json:"gender"`
	RentRange  string `json:"rent_range"`
	Source     string `json:"lead_source"`
	VisitDate  string `json:"visit_date"`
	VisitTime  string `json:"visit_time"`
	VisitType  string `json:"visit_type"`
	Status     string `json:"lead_status"`
	FirebaseID string `json:"firebase_id"`
}

func (c *Client) AddLead(ctx context.Context, lead Lead) error {
	if err := c.post(ctx, "/tenant/addLeadFromEazyPGID", lead, nil); err != nil {
		return fmt.Errorf("add lead: %w", err)
	}
	return nil
}

// TenantUUID looks up the tenant for a phone at a property. An empty result
// means no tenant exists yet.
func (c *Client) TenantUUID(ctx context.Context, phone, eazypgID string) (string, error) {
	var resp struct {
		Data struct {
			TenantUUID Text `json:"tenant_uuid"`
		} `json:"data"`
	}
	q := url.Values{"phone": {phone}, "eazypg_id": {eazypgID}}
	if err := c.get(ctx, "/tenant/get-tenant_uuid", q, &resp); err != nil {
		return "", fmt.Errorf("tenant uuid: %w", err)
	}
	return string(resp.Data.TenantUUID), nil
}

// PaymentLink creates a token-payment link and returns its short code and
// the operator's name for the property.
func (c *Client) PaymentLink(ctx context.Context, tenantUUID, pgID, pgNumber string, amount float64) (code, pgName string, err error) {
	var resp struct {
		Data struct {
			Link   Text `json:"link"`
			PGName Text `json:"pg_name"`
		} `json:"data"`
	}
	q := url.Values{
		"pg_id":     {pgID},
		"pg_number": {pgNumber},
		"amount":    {fmt.Sprintf("%g", amount)},
	}
	path := "/tenant/" + url.PathEscape(tenantUUID) + "/lead-payment-link"
	if err := c.get(ctx, path, q, &resp); err != nil {
		return "", "", fmt.Errorf("payment link: %w", err)
	}
	if resp.Data.Link == "" {
		return "", "", fmt.Errorf("payment link: %w", ErrNotFound)
	}
	return string(resp.Data.Link), string(resp.Data.PGName), nil
}

// Payment records a completed token payment.
type Payment struct {
	UserID    string  `json:"user_id"`
	PGID      string  `json:"pg_id"`
	PGNumber  string  `json:"pg_number"`
	Amount    float64 `json:"amount"`
	ShortLink string  `json:"short_link"`
}

func (c *Client) AddPayment(ctx context.Context, p Payment) error {
	p.UserID = truncateID(p.UserID)
	if err := c.post(ctx, "/bookingBot/addPayment", p, nil); err != nil {
		return fmt.Errorf("add payment: %w", err)
	}
	return nil
}

// Reserve reserves a bed, or with checkOnly reports whether one already is.
func (c *Client) Reserve(ctx context.Context, userID, propertyID string, checkOnly bool) (bool, error) {
	body := map[string]any{"user_id": userID, "property_id": propertyID}
	if checkOnly {
		body["check_only"] = true
	}
	var resp struct {
		Success  bool `json:"success"`
		Reserved bool `json:"reserved"`
	}
	if err := c.post(ctx, "/bookingBot/reserveProperty", body, &resp); err != nil {
		return false, fmt.Errorf("reserve bed: %w", err)
	}
	if checkOnly {
		return resp.Success || resp.Reserved, nil
	}
	return true, nil
}
