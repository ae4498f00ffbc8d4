// Package broker implements the property discovery tools: preferences,
// search, details, rooms, images, places, comparison and shortlisting.
package broker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aiox-platform/bookingbot/internal/analytics"
	"github.com/aiox-platform/bookingbot/internal/followup"
	"github.com/aiox-platform/bookingbot/internal/rentok"
	"github.com/aiox-platform/bookingbot/internal/tools"
	"github.com/aiox-platform/bookingbot/internal/usermemory"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

type Service struct {
	api       *rentok.Client
	state     *userstate.Store
	memory    *usermemory.Store
	followups *followup.Scheduler
	funnel    *analytics.Tracker
}

func NewService(api *rentok.Client, state *userstate.Store, memory *usermemory.Store, followups *followup.Scheduler, funnel *analytics.Tracker) *Service {
	return &Service{api: api, state: state, memory: memory, followups: followups, funnel: funnel}
}

// Tools returns every broker tool, ready to register.
func (s *Service) Tools() []tools.Tool {
	return []tools.Tool{
		tools.New(savePreferencesSchema, s.SavePreferences),
		tools.New(searchSchema, s.Search),
		tools.New(detailsSchema, s.PropertyDetails),
		tools.New(roomsSchema, s.RoomDetails),
		tools.New(imagesSchema, s.Images),
		tools.New(landmarksSchema, s.Landmarks),
		tools.New(nearbySchema, s.NearbyPlaces),
		tools.New(compareSchema, s.Compare),
		tools.New(shortlistSchema, s.Shortlist),
		tools.New(querySchema, s.PropertiesByQuery),
	}
}

// SavePreferencesTool is shared with the booking agent.
func (s *Service) SavePreferencesTool() tools.Tool {
	return tools.New(savePreferencesSchema, s.SavePreferences)
}

func (s *Service) lookup(ctx context.Context, userID, name string) (userstate.Property, bool, error) {
	return tools.Lookup(ctx, s.state, userID, name)
}

var propertyNameParam = tools.Param{Type: tools.String, Description: "Property name exactly as shown in the search results"}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func rupees(v string) string {
	if v == "" {
		return "N/A"
	}
	return "₹" + v
}

func notFound(name string) string {
	return fmt.Sprintf("Property '%s' not found in search results. Please check the exact name.", name)
}
