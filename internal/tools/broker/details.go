package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aiox-platform/bookingbot/internal/tools"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

const maxImages = 10

var (
	detailsSchema = tools.Schema{
		Name:        "fetch_property_details",
		Description: "Fetch full details (rules, amenities, rooms, notice period) of a property from the search results.",
		Params:      map[string]tools.Param{"property_name": propertyNameParam},
		Required:    []string{"property_name"},
	}
	roomsSchema = tools.Schema{
		Name:        "fetch_room_details",
		Description: "List the rooms and free beds currently available in a property.",
		Params:      map[string]tools.Param{"property_name": propertyNameParam},
		Required:    []string{"property_name"},
	}
	imagesSchema = tools.Schema{
		Name:        "fetch_property_images",
		Description: "Fetch photo URLs of a property.",
		Params:      map[string]tools.Param{"property_name": propertyNameParam},
		Required:    []string{"property_name"},
	}
)

func (s *Service) PropertyDetails(ctx context.Context, inv tools.Invocation) (string, error) {
	name := inv.Args.String("property_name")
	prop, ok, err := s.lookup(ctx, inv.UserID, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("Property '%s' not found. Please check the exact name from search results.", name), nil
	}
	id := prop.ID
	if id == "" {
		id = prop.PGID
	}
	if id == "" {
		return "Property ID not available.", nil
	}

	details, rooms, err := s.api.Details(ctx, id)
	if err != nil {
		return "", err
	}
	if details.Empty() {
		return fmt.Sprintf("Detailed info for '%s' is currently unavailable. Here's what we know: "+
			"Location: %s, Rent starts from: %s, Type: %s. Link: %s",
			prop.Name, orNA(prop.Location), orNA(prop.Rent), orNA(prop.Type), orNA(prop.Link)), nil
	}

	// Keep the cache in step with what the backend now reports.
	if v := details.MapURL.String(); v != "" {
		prop.MapURL = v
	}
	if v := details.MicrositeURL.String(); v != "" {
		prop.Link = v
	}
	if v := details.MinToken.String(); v != "" {
		prop.MinToken = v
	}
	if v := details.Amenities.String(); v != "" {
		prop.Amenities = v
	}
	if err := s.state.CacheProperties(ctx, inv.UserID, []userstate.Property{prop}); err != nil {
		slog.Warn("failed to refresh cached property", "user_id", inv.UserID, "error", err)
	}

	title := details.Name.String()
	if title == "" {
		title = prop.Name
	}
	var b strings.Builder
	fmt.Fprintf(&b, "PROPERTY DETAILS: %s\n", title)
	for _, f := range details.Fields() {
		fmt.Fprintf(&b, "- %s: %s\n", f[0], f[1])
	}
	if len(rooms) > 0 {
		b.WriteString("\nAVAILABLE ROOMS:\n")
		for _, r := range rooms[:min(len(rooms), 10)] {
			fmt.Fprintf(&b, "- %s: %s sharing, Rent: %s\n", r.DisplayName(), r.Sharing, orNA(r.Rent.String()))
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Service) RoomDetails(ctx context.Context, inv tools.Invocation) (string, error) {
	name := inv.Args.String("property_name")
	prop, ok, err := s.lookup(ctx, inv.UserID, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("Property '%s' not found.", name), nil
	}
	if prop.EazyPGID == "" {
		return "Property EazyPG ID not available.", nil
	}

	rooms, err := s.api.Rooms(ctx, prop.EazyPGID)
	if err != nil {
		return "", err
	}
	if len(rooms) == 0 {
		return fmt.Sprintf("No available rooms found for '%s'.", prop.Name), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Available rooms at '%s':\n", prop.Name)
	for _, r := range rooms {
		fmt.Fprintf(&b, "- %s: %s sharing, Available beds: %s", r.DisplayName(), r.Sharing, orNA(r.Beds()))
		if r.Rent != "" {
			fmt.Fprintf(&b, ", Rent: ₹%s", r.Rent)
		}
		if r.Amenities != "" {
			fmt.Fprintf(&b, ", Amenities: %s", r.Amenities)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Service) Images(ctx context.Context, inv tools.Invocation) (string, error) {
	name := inv.Args.String("property_name")
	prop, ok, err := s.lookup(ctx, inv.UserID, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return notFound(name), nil
	}

	urls, err := s.api.Images(ctx, prop.PGID, prop.PGNumber)
	if err != nil {
		return "", err
	}
	if len(urls) == 0 {
		return fmt.Sprintf("No images found for '%s'.", prop.Name), nil
	}
	urls = urls[:min(len(urls), maxImages)]
	return fmt.Sprintf("Found %d images for '%s':\n%s", len(urls), prop.Name, strings.Join(urls, "\n")), nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
