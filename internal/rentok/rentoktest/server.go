// Package rentoktest runs an in-process fake of the Rentok backend for
// tests of the tools and the pipeline.
package rentoktest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aiox-platform/bookingbot/internal/config"
	"github.com/aiox-platform/bookingbot/internal/rentok"
	"github.com/aiox-platform/bookingbot/internal/retry"
)

// RejectedOTP is the one OTP the fake refuses.
const RejectedOTP = "000000"

// Andheri is the coordinate every known address geocodes to.
var Andheri = [2]float64{19.1197, 72.8468}

// Server answers the Rentok endpoints from its exported fields. Addresses
// listed in Unknown geocode to nothing.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	Listings  []map[string]any
	Details   map[string]any
	Rooms     []map[string]any
	Images    []string
	Catalogue []map[string]any
	Brand     map[string]any
	Unknown   map[string]bool
	// Fail makes the named path answer 500.
	Fail map[string]bool
	// KYCStatus is reported by the kyc-status endpoint.
	KYCStatus int
	// TenantUUID is empty until a lead is created, unless preset.
	TenantUUID string
	Bookings   []map[string]any

	calls  map[string]int
	bodies map[string][]map[string]any
}

// Listing is a search hit in the backend's wire format.
func Listing(id, name string, rent int, distanceM float64) map[string]any {
	return map[string]any{
		"p_id":               id,
		"p_pg_name":          name,
		"p_address_line_1":   "Link Road",
		"p_city":             "Mumbai",
		"p_rent_starts_from": rent,
		"p_pg_available_for": "Any",
		"p_property_type":    "PG",
		"p_pg_id":            "pg-" + id,
		"p_pg_number":        "1",
		"p_eazypg_id":        "ez-" + id,
		"p_distance":         distanceM,
		"p_latitude":         Andheri[0] + 0.001,
		"p_longitude":        Andheri[1] + 0.001,
		"p_phone_number":     "9876543210",
		"p_min_token_amount": 2000,
		"p_microsite_url":    "https://stay.example.com/" + id,
		"p_amenities":        "wifi, ac, meals",
	}
}

func New(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		Unknown: map[string]bool{},
		Fail:    map[string]bool{},
		calls:   map[string]int{},
		bodies:  map[string][]map[string]any{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Client returns a rentok.Client pointed at the fake with one attempt per
// call.
func (s *Server) Client() *rentok.Client {
	return rentok.New(config.RentokConfig{
		BaseURL:   s.URL,
		PlacesURL: s.URL + "/overpass",
		Timeout:   5 * time.Second,
	}, retry.Policy{Attempts: 1, Base: time.Millisecond})
}

// Calls reports how often a path was hit.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// Bodies returns the decoded JSON bodies posted to a path.
func (s *Server) Bodies(path string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.bodies[path]...)
}

func (s *Server) Set(fn func(s *Server)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if r.Method == http.MethodPost {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	path := r.URL.Path
	s.calls[path]++
	if body != nil {
		s.bodies[path] = append(s.bodies[path], body)
	}
	if s.Fail[path] {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
		return
	}

	switch {
	case path == "/property/getLatLongProperty":
		addr, _ := body["address"].(string)
		if s.Unknown[addr] {
			reply(w, map[string]any{"data": map[string]any{"data": map[string]any{}}})
			return
		}
		reply(w, map[string]any{"data": map[string]any{"data": map[string]any{"lat": Andheri[0], "lng": Andheri[1]}}})
	case path == "/property/getPropertyDetailsAroundLatLong":
		reply(w, map[string]any{"data": map[string]any{"status": 200, "data": map[string]any{"results": s.Listings}}})
	case path == "/bookingBot/fetchPropertyImages":
		reply(w, map[string]any{"images": s.Images})
	case path == "/property/property-details-bots":
		reply(w, map[string]any{"property_data": s.Details, "property_rooms": s.Rooms})
	case path == "/bookingBot/getAvailableRoomFromEazyPGID":
		reply(w, map[string]any{"rooms": s.Rooms})
	case path == "/bookingBot/fetch-all-properties":
		reply(w, map[string]any{"properties": s.Catalogue})
	case path == "/bookingBot/property-info":
		reply(w, map[string]any{"data": s.Brand})
	case path == "/bookingBot/add-booking":
		s.Bookings = append(s.Bookings, body)
		reply(w, map[string]any{"success": true})
	case path == "/tenant/get-tenant_uuid":
		reply(w, map[string]any{"data": map[string]any{"tenant_uuid": s.TenantUUID}})
	case path == "/tenant/addLeadFromEazyPGID":
		if s.TenantUUID == "" {
			s.TenantUUID = "tenant-1"
		}
		reply(w, map[string]any{"success": true})
	case strings.HasSuffix(path, "/lead-payment-link"):
		reply(w, map[string]any{"data": map[string]any{"link": "abc123", "pg_name": "Sunrise Living"}})
	case strings.HasSuffix(path, "/kyc-status"):
		reply(w, map[string]any{"data": map[string]any{"kyc_status": s.KYCStatus}})
	case strings.HasSuffix(path, "/events"):
		reply(w, map[string]any{"data": s.Bookings})
	case path == "/checkIn/verifyAadharOTP":
		if body["otp"] == RejectedOTP {
			reply(w, map[string]any{"status": 400, "message": "OTP expired"})
			return
		}
		reply(w, map[string]any{"status": 200, "data": map[string]any{"name": "Asha Rao", "gender": "Female"}})
	case path == "/overpass":
		reply(w, map[string]any{"elements": []map[string]any{
			{"tags": map[string]any{"name": "City Hospital", "amenity": "hospital"}},
		}})
	default:
		reply(w, map[string]any{"success": true})
	}
}

func reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
