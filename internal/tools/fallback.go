package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aiox-platform/bookingbot/internal/userstate"
)

var propertyTools = map[string]bool{
	"fetch_property_details": true,
	"fetch_room_details":     true,
	"fetch_property_images":  true,
	"fetch_landmarks":        true,
	"fetch_nearby_places":    true,
	"compare_properties":     true,
}

// IsPropertyTool reports whether name is eligible for the cached fallback.
func IsPropertyTool(name string) bool {
	return propertyTools[name]
}

// PropertyCache is the user's cached search results.
type PropertyCache interface {
	Properties(ctx context.Context, userID string) ([]userstate.Property, error)
}

// Fallback answers failed property tools from cached search results.
type Fallback struct {
	cache PropertyCache
}

func NewFallback(cache PropertyCache) *Fallback {
	return &Fallback{cache: cache}
}

// Render finds the properties named in args and describes them from the
// cache. It reports false when nothing matched.
func (f *Fallback) Render(ctx context.Context, userID string, args Args) (string, bool) {
	queries := args.Strings("property_names")
	for _, key := range []string{"property_name", "property_id"} {
		if s := args.String(key); s != "" {
			queries = append(queries, s)
		}
	}
	if len(queries) == 0 {
		return "", false
	}

	cached, err := f.cache.Properties(ctx, userID)
	if err != nil {
		slog.Warn("reading property cache for fallback", "user_id", userID, "error", err)
		return "", false
	}

	var sections []string
	seen := map[string]bool{}
	for _, q := range queries {
		p, ok := MatchProperty(cached, q)
		if !ok || seen[p.ID+p.Name] {
			continue
		}
		seen[p.ID+p.Name] = true
		sections = append(sections, describe(p))
	}
	if len(sections) == 0 {
		return "", false
	}
	return "Live details are temporarily unavailable. From the earlier search results:\n\n" +
		strings.Join(sections, "\n\n"), true
}

func describe(p userstate.Property) string {
	lines := []string{"Name: " + p.Name}
	add := func(label, v string) {
		if v != "" {
			lines = append(lines, label+": "+v)
		}
	}
	add("Location", p.Location)
	add("Rent", p.Rent)
	add("Type", p.Type)
	add("Available for", p.AvailableFor)
	add("Map", p.MapURL)
	add("Link", p.Link)
	return strings.Join(lines, "\n")
}

// MatchProperty finds a cached property by id or fuzzy name: exact
// (case-insensitive), then substring either way, then at least half of the
// query's words appearing in the name.
func MatchProperty(props []userstate.Property, query string) (userstate.Property, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return userstate.Property{}, false
	}
	for _, p := range props {
		if p.ID == query || strings.ToLower(p.Name) == q {
			return p, true
		}
	}
	for _, p := range props {
		name := strings.ToLower(p.Name)
		if name != "" && (strings.Contains(name, q) || strings.Contains(q, name)) {
			return p, true
		}
	}
	qTokens := strings.Fields(q)
	best, bestHits := userstate.Property{}, 0
	for _, p := range props {
		nameTokens := map[string]bool{}
		for _, t := range strings.Fields(strings.ToLower(p.Name)) {
			nameTokens[t] = true
		}
		hits := 0
		for _, t := range qTokens {
			if nameTokens[t] {
				hits++
			}
		}
		if hits > bestHits && float64(hits) >= float64(len(qTokens))*0.5 {
			best, bestHits = p, hits
		}
	}
	return best, bestHits > 0
}

// Summary is a one-line description used in tool output.
func Summary(p userstate.Property) string {
	return fmt.Sprintf("%s | %s | Rent: %s", p.Name, p.Location, p.Rent)
}

// Lookup resolves a property the model named against the user's cached
// search results.
func Lookup(ctx context.Context, cache PropertyCache, userID, name string) (userstate.Property, bool, error) {
	props, err := cache.Properties(ctx, userID)
	if err != nil {
		return userstate.Property{}, false, fmt.Errorf("read property cache: %w", err)
	}
	p, ok := MatchProperty(props, name)
	return p, ok, nil
}
