package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aiox-platform/bookingbot/internal/analytics"
	"github.com/aiox-platform/bookingbot/internal/followup"
	"github.com/aiox-platform/bookingbot/internal/tools"
)

var (
	shortlistSchema = tools.Schema{
		Name:        "shortlist_property",
		Description: "Shortlist a property from the search results for the user.",
		Params:      map[string]tools.Param{"property_name": propertyNameParam},
		Required:    []string{"property_name"},
	}
	querySchema = tools.Schema{
		Name:        "fetch_properties_by_query",
		Description: "Find the operator's properties whose name matches a query, regardless of location.",
		Params: map[string]tools.Param{
			"query": {Type: tools.String, Description: "Full or partial property name"},
		},
		Required: []string{"query"},
	}
)

func (s *Service) Shortlist(ctx context.Context, inv tools.Invocation) (string, error) {
	name := inv.Args.String("property_name")
	prop, ok, err := s.lookup(ctx, inv.UserID, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return notFound(name), nil
	}
	id := prop.ID
	if id == "" {
		id = prop.PGID
	}
	contact := prop.Phone
	if contact == "" {
		contact = inv.UserID[:min(len(inv.UserID), 12)]
	}

	if err := s.api.Shortlist(ctx, inv.UserID, id, contact); err != nil {
		return "", err
	}

	s.funnel.TrackFunnel(ctx, inv.UserID, analytics.StageShortlist)
	if _, err := s.memory.RecordShortlist(ctx, inv.UserID, id); err != nil {
		slog.Warn("failed to record shortlist", "user_id", inv.UserID, "error", err)
	}
	data := map[string]string{"property_name": prop.Name, "property_id": id}
	if _, err := s.followups.Schedule(ctx, inv.UserID, followup.ShortlistIdle, data, followup.ShortlistNudge); err != nil {
		slog.Warn("failed to schedule shortlist follow-up", "user_id", inv.UserID, "error", err)
	}
	return fmt.Sprintf("Property '%s' has been shortlisted successfully.", prop.Name), nil
}

func (s *Service) PropertiesByQuery(ctx context.Context, inv tools.Invocation) (string, error) {
	query := inv.Args.String("query")
	pgIDs, err := s.state.PGIDs(ctx, inv.UserID)
	if err != nil {
		return "", fmt.Errorf("read pg ids: %w", err)
	}
	all, err := s.api.AllProperties(ctx, pgIDs)
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "No properties found.", nil
	}

	q := strings.ToLower(query)
	var lines []string
	for _, p := range all {
		name := strings.ToLower(strings.TrimSpace(p.DisplayName()))
		if name == "" || !(strings.Contains(name, q) || strings.Contains(q, name)) {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s | %s | Rent: %s", p.DisplayName(), p.Place(), rupees(p.Price())))
		if len(lines) == 5 {
			break
		}
	}
	if len(lines) == 0 {
		return fmt.Sprintf("No properties matching '%s' found.", query), nil
	}
	return fmt.Sprintf("Properties matching '%s':\n%s", query, strings.Join(lines, "\n")), nil
}
