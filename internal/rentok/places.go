package rentok

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
)

// Place is a point of interest near a property.
type Place struct {
	Name string
	Kind string
}

// NearbyPlaces queries the Overpass interpreter for amenities within radius
// metres of a point. An empty amenity matches any amenity tag.
func (c *Client) NearbyPlaces(ctx context.Context, lat, lng float64, radius int, amenity string) ([]Place, error) {
	filter := `["amenity"]`
	if amenity != "" {
		filter = fmt.Sprintf(`["amenity"=%s]`, strconv.Quote(amenity))
	}
	query := fmt.Sprintf("[out:json];(node%s(around:%d,%f,%f););out body 10;", filter, radius, lat, lng)

	var resp struct {
		Elements []struct {
			Tags map[string]string `json:"tags"`
		} `json:"elements"`
	}
	u := c.placesURL + "?" + url.Values{"data": {query}}.Encode()
	if err := c.do(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("nearby places: %w", err)
	}
	places := make([]Place, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		name := el.Tags["name"]
		if name == "" {
			name = "Unnamed"
		}
		places = append(places, Place{Name: name, Kind: el.Tags["amenity"]})
		if len(places) == 10 {
			break
		}
	}
	return places, nil
}

// DistanceKM is the great-circle distance between two points.
func DistanceKM(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKM = 6371.0
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
