package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aiox-platform/bookingbot/internal/rentok"
	"github.com/aiox-platform/bookingbot/internal/tools"
)

const defaultNearbyRadius = 5000

var (
	landmarksSchema = tools.Schema{
		Name:        "fetch_landmarks",
		Description: "Distance from a property to a landmark such as an office, college or station.",
		Params: map[string]tools.Param{
			"landmark_name": {Type: tools.String, Description: "Landmark or address"},
			"property_name": propertyNameParam,
		},
		Required: []string{"landmark_name", "property_name"},
	}
	nearbySchema = tools.Schema{
		Name:        "fetch_nearby_places",
		Description: "List places (hospitals, gyms, restaurants, ...) around a property.",
		Params: map[string]tools.Param{
			"property_name": propertyNameParam,
			"radius":        {Type: tools.Integer, Description: "Search radius in metres, default 5000"},
			"amenity":       {Type: tools.String, Description: "OpenStreetMap amenity tag such as hospital, gym, restaurant"},
		},
		Required: []string{"property_name"},
	}
)

func (s *Service) Landmarks(ctx context.Context, inv tools.Invocation) (string, error) {
	landmark := inv.Args.String("landmark_name")
	name := inv.Args.String("property_name")
	prop, ok, err := s.lookup(ctx, inv.UserID, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("Property '%s' not found.", name), nil
	}
	if prop.Lat == 0 || prop.Lng == 0 {
		return "Property coordinates not available.", nil
	}

	lat, lng, err := s.api.Geocode(ctx, landmark)
	if errors.Is(err, rentok.ErrNotFound) {
		return fmt.Sprintf("Could not find coordinates for '%s'.", landmark), nil
	}
	if err != nil {
		return "", err
	}
	km := rentok.DistanceKM(prop.Lat, prop.Lng, lat, lng)
	return fmt.Sprintf("Distance from '%s' to '%s': %.1f km (straight line)", prop.Name, landmark, km), nil
}

func (s *Service) NearbyPlaces(ctx context.Context, inv tools.Invocation) (string, error) {
	name := inv.Args.String("property_name")
	radius := inv.Args.Int("radius")
	if radius <= 0 {
		radius = defaultNearbyRadius
	}
	amenity := inv.Args.String("amenity")

	prop, ok, err := s.lookup(ctx, inv.UserID, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("Property '%s' not found.", name), nil
	}
	if prop.Lat == 0 || prop.Lng == 0 {
		return "Property coordinates not available.", nil
	}

	places, err := s.api.NearbyPlaces(ctx, prop.Lat, prop.Lng, radius, amenity)
	if err != nil {
		return "", err
	}
	if len(places) == 0 {
		what := amenity
		if what == "" {
			what = "places"
		}
		return fmt.Sprintf("No nearby %s found within %dm of '%s'.", what, radius, prop.Name), nil
	}

	lines := make([]string, len(places))
	for i, p := range places {
		lines[i] = fmt.Sprintf("- %s (%s)", p.Name, p.Kind)
	}
	return fmt.Sprintf("Nearby places within %dm of '%s':\n%s", radius, prop.Name, strings.Join(lines, "\n")), nil
}
