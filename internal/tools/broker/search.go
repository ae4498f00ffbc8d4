package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aiox-platform/bookingbot/internal/rentok"
	"github.com/aiox-platform/bookingbot/internal/scoring"
	"github.com/aiox-platform/bookingbot/internal/tools"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

const (
	defaultRadius   = 20000
	radiusStep      = 5000
	maxUserRadius   = 35000
	relaxedRadius   = 35000
	widestRadius    = 50000
	noRentCap       = 10000000
	minResults      = 5
	enrichLimit     = 5
	maxListed       = 20
	relaxedAreaNote = "[RELAXED: expanded area, flexible budget] "
	relaxedAllNote  = "[RELAXED: showing all nearby properties] "
)

var searchSchema = tools.Schema{
	Name:        "search_properties",
	Description: "Search properties around the saved location using the saved preferences. Call save_preferences first.",
	Params: map[string]tools.Param{
		"radius_flag": {Type: tools.Boolean, Description: "Widen the search radius by 5 km (up to 35 km)"},
	},
}

func (s *Service) Search(ctx context.Context, inv tools.Invocation) (string, error) {
	prefs, err := s.state.Preferences(ctx, inv.UserID)
	if err != nil {
		return "", fmt.Errorf("read preferences: %w", err)
	}
	if prefs.Location == "" {
		return "No location set. Please save preferences with a location first.", nil
	}

	radius := int(prefs.Radius)
	if radius <= 0 {
		radius = defaultRadius
	}
	if inv.Args.Bool("radius_flag") {
		radius = min(radius+radiusStep, maxUserRadius)
		if _, err := s.state.MergePreferences(ctx, inv.UserID, userstate.Preferences{Radius: float64(radius)}); err != nil {
			slog.Warn("failed to save widened radius", "user_id", inv.UserID, "error", err)
		}
	}

	lat, lng, err := s.api.Geocode(ctx, prefs.Location)
	if err != nil {
		if !errors.Is(err, rentok.ErrNotFound) {
			slog.Warn("geocoding failed", "location", prefs.Location, "error", err)
		}
		return fmt.Sprintf("Could not find coordinates for '%s'. Please try a more specific area or city name.", prefs.Location), nil
	}

	pgIDs, err := s.state.PGIDs(ctx, inv.UserID)
	if err != nil {
		return "", fmt.Errorf("read pg ids: %w", err)
	}

	coords := [][2]float64{{lat, lng}}
	req := rentok.SearchRequest{
		Coords:         coords,
		Radius:         radius,
		RentTo:         noRentCap,
		RentFrom:       prefs.MinBudget,
		PGIDs:          pgIDs,
		UnitTypes:      prefs.UnitTypes,
		SharingEnabled: prefs.SharingTypes,
	}
	if prefs.MaxBudget > 0 {
		req.RentTo = prefs.MaxBudget
	}
	if prefs.AvailableFor == "All Boys" || prefs.AvailableFor == "All Girls" {
		req.AvailableFor = prefs.AvailableFor
	}

	listings, err := s.api.Search(ctx, req)
	if err != nil {
		return "", err
	}

	note := ""
	if len(listings) < minResults {
		relaxed := rentok.SearchRequest{Coords: coords, Radius: relaxedRadius, RentTo: noRentCap, PGIDs: pgIDs, UnitTypes: prefs.UnitTypes}
		if prefs.MaxBudget > 0 {
			relaxed.RentTo = max(prefs.MaxBudget*3, 300000)
		}
		if merged, ok := s.relax(ctx, listings, relaxed); ok {
			listings, note = merged, relaxedAreaNote
		}
	}
	if len(listings) < minResults {
		widest := rentok.SearchRequest{Coords: coords, Radius: widestRadius, RentTo: noRentCap, PGIDs: pgIDs}
		if merged, ok := s.relax(ctx, listings, widest); ok {
			listings, note = merged, relaxedAllNote
		}
	}
	if len(listings) == 0 {
		return "No properties are currently available in this region.", nil
	}

	s.enrichImages(ctx, listings)

	var dealBreakers []string
	if rec, err := s.memory.Get(ctx, inv.UserID); err == nil {
		dealBreakers = rec.DealBreakers
	} else {
		slog.Warn("failed to read user memory", "user_id", inv.UserID, "error", err)
	}

	props := make([]userstate.Property, len(listings))
	for i, l := range listings {
		props[i] = toProperty(l)
		props[i].MatchScore = scoring.MatchScore(scoringInput(props[i]), prefs, scoring.Options{DealBreakers: dealBreakers})
	}
	scoring.Rank(props, func(p userstate.Property) float64 { return p.MatchScore })
	total := len(props)
	if len(props) > maxListed {
		props = props[:maxListed]
	}

	if err := s.state.CacheProperties(ctx, inv.UserID, props); err != nil {
		slog.Warn("failed to cache search results", "user_id", inv.UserID, "error", err)
	}
	ids := make([]string, 0, len(props))
	for _, p := range props {
		if p.ID != "" {
			ids = append(ids, p.ID)
		}
	}
	if _, err := s.memory.RecordViews(ctx, inv.UserID, ids...); err != nil {
		slog.Warn("failed to record viewed properties", "user_id", inv.UserID, "error", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%sFound %d properties. Here are the results:\n", note, total)
	for _, p := range props {
		b.WriteString(resultLine(p))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// relax runs a wider search and appends listings not yet present. It
// reports false when the wider search did not return more results.
func (s *Service) relax(ctx context.Context, current []rentok.Listing, req rentok.SearchRequest) ([]rentok.Listing, bool) {
	more, err := s.api.Search(ctx, req)
	if err != nil {
		slog.Warn("relaxed search failed", "radius", req.Radius, "error", err)
		return current, false
	}
	if len(more) <= len(current) {
		return current, false
	}
	seen := make(map[string]bool, len(current))
	for _, l := range current {
		seen[l.Key()] = true
	}
	for _, l := range more {
		if k := l.Key(); !seen[k] {
			seen[k] = true
			current = append(current, l)
		}
	}
	return current, true
}

// enrichImages fetches a first image for the top listings that have none.
func (s *Service) enrichImages(ctx context.Context, listings []rentok.Listing) {
	var g errgroup.Group
	for i := range listings[:min(len(listings), enrichLimit)] {
		l := &listings[i]
		if l.Image != "" || l.PGID == "" || l.PGNumber == "" {
			continue
		}
		g.Go(func() error {
			images, err := s.api.Images(ctx, l.PGID.String(), l.PGNumber.String())
			if err != nil {
				slog.Debug("image enrichment failed", "pg_id", l.PGID, "error", err)
				return nil
			}
			if len(images) > 0 {
				l.Image = rentok.Text(images[0])
			}
			return nil
		})
	}
	_ = g.Wait()
}

func toProperty(l rentok.Listing) userstate.Property {
	p := userstate.Property{
		ID:           l.Key(),
		Name:         l.DisplayName(),
		Location:     l.Address(),
		Rent:         l.Rent.String(),
		AvailableFor: l.AvailableFor.String(),
		Type:         l.Type.String(),
		Amenities:    l.Amenities.String(),
		Image:        l.Image.String(),
		PGID:         l.PGID.String(),
		PGNumber:     l.PGNumber.String(),
		EazyPGID:     l.EazyPGID.String(),
		Link:         l.MicrositeURL.String(),
		Phone:        l.Phone.String(),
		MinToken:     l.MinToken.String(),
	}
	if p.AvailableFor == "" {
		p.AvailableFor = "Any"
	}
	if p.MinToken == "" {
		p.MinToken = "1000"
	}
	if d, ok := parseFloat(l.Distance.String()); ok {
		p.DistanceM = d
	}
	lat, latOK := parseFloat(l.Lat.String())
	lng, lngOK := parseFloat(l.Lng.String())
	if latOK && lngOK {
		p.Lat, p.Lng = lat, lng
		p.MapURL = fmt.Sprintf("https://www.google.com/maps?q=%s,%s", l.Lat, l.Lng)
	}
	return p
}

func scoringInput(p userstate.Property) scoring.Property {
	in := scoring.Property{
		Rent:         scoring.ParseNumber(p.Rent),
		Amenities:    userstate.SplitList(p.Amenities),
		PropertyType: p.Type,
		AvailableFor: p.AvailableFor,
	}
	if p.DistanceM > 0 {
		d := p.DistanceM
		in.DistanceM = &d
	}
	return in
}

// resultLine renders one search hit for the model. Internal ids and owner
// phone numbers stay in the cache and never reach the conversation.
func resultLine(p userstate.Property) string {
	parts := []string{"- " + p.Name}
	if p.Location != "" {
		parts = append(parts, p.Location)
	}
	parts = append(parts,
		"Rent starts from: "+rupees(p.Rent),
		"For: "+p.AvailableFor,
		fmt.Sprintf("Match: %.0f%% (%s)", p.MatchScore, scoring.Indicator(p.MatchScore)),
	)
	if p.DistanceM > 0 {
		parts = append(parts, fmt.Sprintf("Distance: %.1f km", p.DistanceM/1000))
	}
	if p.Image != "" {
		parts = append(parts, "Image: "+p.Image)
	}
	if p.Link != "" {
		parts = append(parts, "Link: "+p.Link)
	}
	return strings.Join(parts, " | ")
}
