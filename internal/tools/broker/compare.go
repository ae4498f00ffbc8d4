package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aiox-platform/bookingbot/internal/rentok"
	"github.com/aiox-platform/bookingbot/internal/scoring"
	"github.com/aiox-platform/bookingbot/internal/tools"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

const maxCompared = 3

var compareSchema = tools.Schema{
	Name:        "compare_properties",
	Description: "Compare 2-3 properties side by side and recommend the best fit for the user.",
	Params: map[string]tools.Param{
		"property_names": {Type: tools.Array, Description: "Two or three property names from the search results"},
	},
	Required: []string{"property_names"},
}

type comparison struct {
	prop    userstate.Property
	details rentok.Details
	rooms   []rentok.Room
	score   float64
}

func (s *Service) Compare(ctx context.Context, inv tools.Invocation) (string, error) {
	names := inv.Args.Strings("property_names")
	if len(names) < 2 {
		return "Please provide at least 2 property names separated by commas to compare.", nil
	}
	names = names[:min(len(names), maxCompared)]

	items := make([]*comparison, len(names))
	for i, name := range names {
		prop, ok, err := s.lookup(ctx, inv.UserID, name)
		if err != nil {
			return "", err
		}
		if !ok {
			return notFound(name), nil
		}
		items[i] = &comparison{prop: prop}
	}

	var g errgroup.Group
	for _, c := range items {
		id := c.prop.ID
		if id == "" {
			id = c.prop.PGID
		}
		g.Go(func() error {
			d, _, err := s.api.Details(ctx, id)
			if err != nil {
				slog.Warn("compare: details fetch failed", "property_id", id, "error", err)
				return nil
			}
			c.details = d
			return nil
		})
		if c.prop.EazyPGID != "" {
			g.Go(func() error {
				rooms, err := s.api.Rooms(ctx, c.prop.EazyPGID)
				if err != nil {
					slog.Warn("compare: rooms fetch failed", "eazypg_id", c.prop.EazyPGID, "error", err)
					return nil
				}
				c.rooms = rooms
				return nil
			})
		}
	}
	_ = g.Wait()

	prefs, err := s.state.Preferences(ctx, inv.UserID)
	if err != nil {
		slog.Warn("compare: failed to read preferences", "user_id", inv.UserID, "error", err)
	}
	var dealBreakers []string
	if rec, err := s.memory.Get(ctx, inv.UserID); err == nil {
		dealBreakers = rec.DealBreakers
	}

	var b strings.Builder
	b.WriteString("PROPERTY COMPARISON\n" + strings.Repeat("=", 50) + "\n\n")
	best := items[0]
	for _, c := range items {
		d, p := c.details, c.prop
		name := pick(d.Name.String(), p.Name)
		rent := pick(d.RentFrom.String(), p.Rent)
		amenities := pick(d.CommonAmenities.String(), d.Amenities.String(), p.Amenities)
		propType := pick(d.Type.String(), p.Type)
		availableFor := pick(d.TenantsPreferred.String(), p.AvailableFor)
		token := pick(d.MinToken.String(), p.MinToken)

		in := scoringInput(p)
		in.Rent = scoring.ParseNumber(rent)
		in.Amenities = userstate.SplitList(amenities)
		in.PropertyType, in.AvailableFor = propType, availableFor
		c.score = scoring.MatchScore(in, prefs, scoring.Options{DealBreakers: dealBreakers})
		if c.score > best.score {
			best = c
		}

		fmt.Fprintf(&b, "📍 %s\n", name)
		fmt.Fprintf(&b, "   Location: %s\n", orNA(pick(d.Location.String(), d.Address.String(), p.Location)))
		fmt.Fprintf(&b, "   Rent starts from: %s\n", rupees(rent))
		fmt.Fprintf(&b, "   Match Score: %.1f/100\n", c.score)
		fmt.Fprintf(&b, "   Type: %s | For: %s\n", propType, availableFor)
		if p.DistanceM > 0 {
			fmt.Fprintf(&b, "   Distance: %.1f km\n", p.DistanceM/1000)
		}
		line(&b, "Amenities", amenities)
		line(&b, "Food", d.FoodAmenities.String())
		line(&b, "Services", d.ServicesAmenities.String())
		line(&b, "Notice Period", d.NoticePeriod.String())
		if token != "" {
			fmt.Fprintf(&b, "   Token Amount: ₹%s\n", token)
		}
		if len(c.rooms) > 0 {
			total := 0
			var rooms []string
			for _, r := range c.rooms[:min(len(c.rooms), 5)] {
				beds := r.Beds()
				if n, err := strconv.Atoi(beds); err == nil {
					total += n
				}
				rooms = append(rooms, fmt.Sprintf("%s: %s sharing, %s, %s beds available", r.DisplayName(), r.Sharing, rupees(r.Rent.String()), pick(beds, "?")))
			}
			fmt.Fprintf(&b, "   Rooms (%d beds total):\n", total)
			for _, r := range rooms {
				fmt.Fprintf(&b, "     • %s\n", r)
			}
		}
		line(&b, "Map", p.MapURL)
		line(&b, "Link", pick(d.MicrositeURL.String(), p.Link))
		b.WriteByte('\n')
	}

	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "RECOMMENDATION: %s (score: %.1f/100)\n", pick(best.details.Name.String(), best.prop.Name), best.score)
	b.WriteString("Use this data to explain WHY this property is the best fit. Consider rent, amenities, distance, and the user's specific needs.")
	return b.String(), nil
}

func line(b *strings.Builder, label, v string) {
	if v != "" {
		fmt.Fprintf(b, "   %s: %s\n", label, v)
	}
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
