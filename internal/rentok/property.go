package rentok

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Geocode resolves an address to coordinates.
func (c *Client) Geocode(ctx context.Context, address string) (lat, lng float64, err error) {
	var resp struct {
		Data struct {
			Data struct {
				Lat Text `json:"lat"`
				Lng Text `json:"lng"`
			} `json:"data"`
			Lat  Text `json:"lat"`
			Long Text `json:"long"`
		} `json:"data"`
		Lat  Text `json:"lat"`
		Long Text `json:"long"`
	}
	if err := c.post(ctx, "/property/getLatLongProperty", map[string]string{"address": address}, &resp); err != nil {
		return 0, 0, fmt.Errorf("geocode %q: %w", address, err)
	}
	latS := first(resp.Data.Data.Lat, resp.Data.Lat, resp.Lat)
	lngS := first(resp.Data.Data.Lng, resp.Data.Long, resp.Long)
	lat, errLat := strconv.ParseFloat(latS, 64)
	lng, errLng := strconv.ParseFloat(lngS, 64)
	if errLat != nil || errLng != nil || (lat == 0 && lng == 0) {
		return 0, 0, fmt.Errorf("geocode %q: %w", address, ErrNotFound)
	}
	return lat, lng, nil
}

// SearchRequest is the payload of a radius search around one point.
type SearchRequest struct {
	Coords         [][2]float64 `json:"coords"`
	Radius         int          `json:"radius"`
	RentTo         float64      `json:"rent_ends_to"`
	RentFrom       float64      `json:"rent_starts_from,omitempty"`
	PGIDs          []string     `json:"pg_ids"`
	UnitTypes      string       `json:"unit_types_available,omitempty"`
	AvailableFor   string       `json:"pg_available_for,omitempty"`
	SharingEnabled string       `json:"sharing_type_enabled,omitempty"`
}

// Listing is one search result.
type Listing struct {
	ID           Text `json:"p_id"`
	PropID       Text `json:"prop_id"`
	Name         Text `json:"p_pg_name"`
	PropertyName Text `json:"property_name"`
	Address1     Text `json:"p_address_line_1"`
	Address2     Text `json:"p_address_line_2"`
	City         Text `json:"p_city"`
	Rent         Text `json:"p_rent_starts_from"`
	AvailableFor Text `json:"p_pg_available_for"`
	Type         Text `json:"p_property_type"`
	PGID         Text `json:"p_pg_id"`
	PGNumber     Text `json:"p_pg_number"`
	EazyPGID     Text `json:"p_eazypg_id"`
	Image        Text `json:"p_image"`
	Distance     Text `json:"p_distance"`
	Lat          Text `json:"p_latitude"`
	Lng          Text `json:"p_longitude"`
	Phone        Text `json:"p_phone_number"`
	MinToken     Text `json:"p_min_token_amount"`
	MicrositeURL Text `json:"p_microsite_url"`
	Amenities    Text `json:"p_amenities"`
}

func (l Listing) Key() string         { return first(l.ID, l.PropID) }
func (l Listing) DisplayName() string { return first(l.Name, l.PropertyName, "Property") }
func (l Listing) Address() string {
	var parts []string
	for _, p := range []Text{l.Address1, l.Address2, l.City} {
		if p != "" {
			parts = append(parts, string(p))
		}
	}
	return strings.Join(parts, ", ")
}

// Search runs a radius search. The backend rejects an empty pg_ids list, so
// that case returns no results without a call.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Listing, error) {
	if len(req.PGIDs) == 0 {
		return nil, nil
	}
	var resp struct {
		Data struct {
			Status  int    `json:"status"`
			Message string `json:"message"`
			Data    struct {
				Results []Listing `json:"results"`
			} `json:"data"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/property/getPropertyDetailsAroundLatLong", req, &resp); err != nil {
		return nil, fmt.Errorf("search properties: %w", err)
	}
	if resp.Data.Status == 500 {
		return nil, fmt.Errorf("search properties: backend error: %s", resp.Data.Message)
	}
	return resp.Data.Data.Results, nil
}

// Images returns image URLs for a property.
func (c *Client) Images(ctx context.Context, pgID, pgNumber string) ([]string, error) {
	var resp struct {
		Images []json.RawMessage `json:"images"`
		Data   []json.RawMessage `json:"data"`
	}
	body := map[string]string{"pg_id": pgID, "pg_number": pgNumber}
	if err := c.post(ctx, "/bookingBot/fetchPropertyImages", body, &resp); err != nil {
		return nil, fmt.Errorf("fetch images: %w", err)
	}
	items := resp.Images
	if len(items) == 0 {
		items = resp.Data
	}
	urls := make([]string, 0, len(items))
	for _, raw := range items {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			if s != "" {
				urls = append(urls, s)
			}
			continue
		}
		var obj struct {
			URL     Text `json:"url"`
			MediaID Text `json:"media_id"`
		}
		if json.Unmarshal(raw, &obj) == nil {
			if u := first(obj.URL, obj.MediaID); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls, nil
}

// Details is the backend's full property record.
type Details struct {
	Name              Text `json:"property_name"`
	Location          Text `json:"location"`
	Address           Text `json:"address"`
	RentFrom          Text `json:"rent_starts_from"`
	Amenities         Text `json:"amenities"`
	UnitTypes         Text `json:"unit_types_available"`
	Type              Text `json:"property_type"`
	TenantsPreferred  Text `json:"tenants_preferred"`
	NoticePeriod      Text `json:"notice_period"`
	AgreementPeriod   Text `json:"agreement_period"`
	CheckinTime       Text `json:"checkin_time"`
	CheckoutTime      Text `json:"checkout_time"`
	LockingPeriod     Text `json:"locking_period"`
	GSTOnRent         Text `json:"gst_on_rent"`
	Rules             Text `json:"property_rules"`
	CommonAmenities   Text `json:"common_amenities"`
	FoodAmenities     Text `json:"food_amenities"`
	ServicesAmenities Text `json:"services_amenities"`
	About             Text `json:"about"`
	Reviews           Text `json:"reviews"`
	FAQs              Text `json:"faqs"`
	MapURL            Text `json:"google_map"`
	MicrositeURL      Text `json:"microsite_url"`
	MinToken          Text `json:"min_token_amount"`
}

// Empty reports whether the backend returned nothing useful.
func (d Details) Empty() bool {
	return first(d.Name, d.Location, d.Address, d.RentFrom, d.Amenities) == ""
}

// Fields lists the non-empty details as label/value pairs in display order.
func (d Details) Fields() [][2]string {
	all := [][2]string{
		{"Location", first(d.Location, d.Address)},
		{"Rent Starts From", string(d.RentFrom)},
		{"Amenities", string(d.Amenities)},
		{"Unit Types Available", string(d.UnitTypes)},
		{"Property Type", string(d.Type)},
		{"Tenants Preferred", string(d.TenantsPreferred)},
		{"Notice Period", string(d.NoticePeriod)},
		{"Agreement Period", string(d.AgreementPeriod)},
		{"Checkin Time", string(d.CheckinTime)},
		{"Checkout Time", string(d.CheckoutTime)},
		{"Locking Period", string(d.LockingPeriod)},
		{"Gst On Rent", string(d.GSTOnRent)},
		{"Property Rules", string(d.Rules)},
		{"Common Amenities", string(d.CommonAmenities)},
		{"Food Amenities", string(d.FoodAmenities)},
		{"Services Amenities", string(d.ServicesAmenities)},
		{"About", string(d.About)},
		{"Reviews", string(d.Reviews)},
		{"Faqs", string(d.FAQs)},
		{"Google Map", string(d.MapURL)},
		{"Microsite Url", string(d.MicrositeURL)},
		{"Min Token Amount", string(d.MinToken)},
	}
	out := all[:0]
	for _, f := range all {
		if f[1] != "" {
			out = append(out, f)
		}
	}
	return out
}

// Room is one room type with availability.
type Room struct {
	Name          Text `json:"room_name"`
	AltName       Text `json:"name"`
	Sharing       Text `json:"sharing_type"`
	BedsAvailable Text `json:"beds_available"`
	Available     Text `json:"available"`
	Rent          Text `json:"rent"`
	Amenities     Text `json:"amenities"`
}

func (r Room) DisplayName() string { return first(r.Name, r.AltName, "Room") }
func (r Room) Beds() string        { return first(r.BedsAvailable, r.Available) }

// Details fetches the property record and the rooms listed with it.
func (c *Client) Details(ctx context.Context, propertyID string) (Details, []Room, error) {
	var resp struct {
		PropertyData *Details `json:"property_data"`
		Data         *Details `json:"data"`
		Rooms        []Room   `json:"property_rooms"`
		AltRooms     []Room   `json:"rooms"`
	}
	body := map[string]string{"property_id": propertyID}
	if err := c.post(ctx, "/property/property-details-bots", body, &resp); err != nil {
		return Details{}, nil, fmt.Errorf("property details: %w", err)
	}
	var d Details
	switch {
	case resp.PropertyData != nil:
		d = *resp.PropertyData
	case resp.Data != nil:
		d = *resp.Data
	}
	rooms := resp.Rooms
	if len(rooms) == 0 {
		rooms = resp.AltRooms
	}
	return d, rooms, nil
}

// Rooms returns the available rooms of a property.
func (c *Client) Rooms(ctx context.Context, eazypgID string) ([]Room, error) {
	var resp struct {
		Rooms []Room `json:"rooms"`
		Data  []Room `json:"data"`
	}
	q := url.Values{"eazypg_id": {eazypgID}}
	if err := c.get(ctx, "/bookingBot/getAvailableRoomFromEazyPGID", q, &resp); err != nil {
		return nil, fmt.Errorf("room details: %w", err)
	}
	if len(resp.Rooms) > 0 {
		return resp.Rooms, nil
	}
	return resp.Data, nil
}

// Shortlist records a shortlisted property for the user.
func (c *Client) Shortlist(ctx context.Context, userID, propertyID, contact string) error {
	body := map[string]string{
		"user_id":          truncateID(userID),
		"property_id":      propertyID,
		"property_contact": contact,
	}
	if err := c.post(ctx, "/bookingBot/shortlist-booking-bot-property", body, nil); err != nil {
		return fmt.Errorf("shortlist: %w", err)
	}
	return nil
}

// Brand is the operator-level summary shown by the default agent.
type Brand struct {
	Rent              Text `json:"rent"`
	TokenAmount       Text `json:"token_amount"`
	PropertyType      Text `json:"property_type"`
	TenantsPreferred  Text `json:"tenants_preferred"`
	UnitTypes         Text `json:"unit_types_available"`
	SharingTypes      Text `json:"sharing_types_enabled"`
	Availability      Text `json:"pg_availability"`
	CommonAmenities   Text `json:"common_amenities"`
	UniqueAmenities   Text `json:"uniqueAmenityNames"`
	ServicesAmenities Text `json:"services_amenities"`
	EmergencyStay     Text `json:"emergency_stay_rate"`
	Address           Text `json:"address"`
}

func (c *Client) BrandInfo(ctx context.Context, pgIDs []string) (Brand, error) {
	var resp struct {
		Data *Brand `json:"data"`
	}
	q := url.Values{"pg_ids": {strings.Join(pgIDs, ",")}}
	if err := c.get(ctx, "/bookingBot/property-info", q, &resp); err != nil {
		return Brand{}, fmt.Errorf("brand info: %w", err)
	}
	if resp.Data == nil {
		return Brand{}, ErrNotFound
	}
	return *resp.Data, nil
}

// truncateID trims a user id to the 12 characters the booking endpoints accept.
func truncateID(userID string) string {
	if len(userID) > 12 {
		return userID[:12]
	}
	return userID
}

// Summary is a property as listed by the operator-wide catalogue.
type Summary struct {
	Name     Text `json:"property_name"`
	AltName  Text `json:"name"`
	Location Text `json:"location"`
	Address  Text `json:"address"`
	Rent     Text `json:"rent"`
	RentFrom Text `json:"rent_starts_from"`
}

func (s Summary) DisplayName() string { return first(s.Name, s.AltName) }
func (s Summary) Place() string       { return first(s.Location, s.Address) }
func (s Summary) Price() string       { return first(s.Rent, s.RentFrom) }

// AllProperties lists every property of the operator's pg ids.
func (c *Client) AllProperties(ctx context.Context, pgIDs []string) ([]Summary, error) {
	var resp struct {
		Properties []Summary `json:"properties"`
		Data       []Summary `json:"data"`
	}
	body := map[string]any{"pg_ids": pgIDs}
	if err := c.post(ctx, "/bookingBot/fetch-all-properties", body, &resp); err != nil {
		return nil, fmt.Errorf("fetch all properties: %w", err)
	}
	if len(resp.Properties) > 0 {
		return resp.Properties, nil
	}
	return resp.Data, nil
}
