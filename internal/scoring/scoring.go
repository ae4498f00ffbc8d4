// Package scoring rates how well a property fits a user's preferences on a
// 0-100 scale.
package scoring

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/aiox-platform/bookingbot/internal/userstate"
)

const defaultMaxBudget = 100000

var amenityAliases = map[string]string{
	"ac":                  "air conditioning",
	"air conditioning":    "ac",
	"a/c":                 "ac",
	"wifi":                "internet",
	"internet":            "wifi",
	"wi-fi":               "wifi",
	"broadband":           "wifi",
	"meals":               "food",
	"food":                "meals",
	"tiffin":              "meals",
	"mess":                "meals",
	"laundry":             "washing machine",
	"washing machine":     "laundry",
	"washer":              "laundry",
	"housekeeping":        "cleaning",
	"cleaning":            "housekeeping",
	"parking":             "bike parking",
	"two wheeler parking": "bike parking",
	"cctv":                "security",
	"security":            "cctv",
	"guard":               "security",
	"geyser":              "hot water",
	"hot water":           "geyser",
	"water heater":        "geyser",
	"fridge":              "refrigerator",
	"refrigerator":        "fridge",
	"tv":                  "television",
	"television":          "tv",
}

// Property is the subset of a listing that scoring looks at.
type Property struct {
	Rent         float64
	DistanceM    *float64
	Amenities    []string
	PropertyType string
	AvailableFor string
}

type Options struct {
	DealBreakers []string
	NearTransit  bool
}

// MatchScore combines budget (30), distance (20), amenities (30), type (10)
// and gender (10), adds 5 for transit and subtracts 15 per deal-breaker hit.
// The result is clamped to [0, 100] and rounded to one decimal.
func MatchScore(p Property, prefs userstate.Preferences, opts Options) float64 {
	score := budgetScore(p.Rent, prefs.MinBudget, prefs.MaxBudget)

	if p.DistanceM != nil {
		score += distanceScore(*p.DistanceM / 1000)
	}

	propAmenities := amenitySet(p.Amenities)
	score += amenityScore(prefs, propAmenities)

	prefType := strings.ToLower(prefs.PropertyType)
	propType := strings.ToLower(p.PropertyType)
	if prefType != "" && propType != "" {
		if strings.Contains(propType, prefType) || strings.Contains(prefType, propType) {
			score += 10
		}
	} else {
		score += 5
	}

	prefGender := strings.ToLower(prefs.AvailableFor)
	propGender := strings.ToLower(p.AvailableFor)
	if prefGender != "" && propGender != "" {
		if prefGender == "any" || propGender == "any" || strings.Contains(propGender, prefGender) {
			score += 10
		}
	} else {
		score += 5
	}

	if opts.NearTransit {
		score += 5
	}

	if len(opts.DealBreakers) > 0 {
		propText := strings.ToLower(strings.Join(p.Amenities, ", ") + " " + p.AvailableFor + " " + p.PropertyType)
		for _, db := range opts.DealBreakers {
			db = strings.ToLower(strings.TrimSpace(db))
			if db == "" {
				continue
			}
			if amenity, ok := strings.CutPrefix(db, "no "); ok {
				if fuzzyMatchCount(amenitySet([]string{amenity}), propAmenities) == 0 {
					score -= 15
				}
			} else if strings.Contains(propText, db) {
				score -= 15
			}
		}
	}

	score = math.Min(100, math.Max(0, score))
	return math.Round(score*10) / 10
}

func budgetScore(rent, minBudget, maxBudget float64) float64 {
	if rent <= 0 {
		return 0
	}
	if maxBudget <= 0 {
		maxBudget = defaultMaxBudget
	}
	switch {
	case rent >= minBudget && rent <= maxBudget:
		return 30
	case rent < minBudget:
		diff := (minBudget - rent) / math.Max(minBudget, 1)
		return math.Max(0, 30-diff*30)
	default:
		diff := (rent - maxBudget) / math.Max(maxBudget, 1)
		return math.Max(0, 30-diff*60)
	}
}

func distanceScore(km float64) float64 {
	switch {
	case km <= 2:
		return 20
	case km <= 5:
		return math.Max(0, 20-(km-2)*4)
	case km <= 10:
		return math.Max(0, 8-(km-5))
	default:
		return 0
	}
}

func amenityScore(prefs userstate.Preferences, propAmenities map[string]struct{}) float64 {
	mustHave := amenitySet(prefs.MustHave)
	niceToHave := amenitySet(prefs.NiceToHave)
	if len(mustHave) == 0 && len(niceToHave) == 0 {
		mustHave = amenitySet(prefs.Amenities)
	}
	if len(mustHave) == 0 && len(niceToHave) == 0 {
		return 15
	}

	var s float64
	if len(mustHave) > 0 {
		matched := fuzzyMatchCount(mustHave, propAmenities)
		s += float64(matched) / float64(len(mustHave)) * 20
		if matched < len(mustHave) {
			s = math.Min(s, 10)
		}
	} else {
		s += 10
	}
	if len(niceToHave) > 0 {
		matched := fuzzyMatchCount(niceToHave, propAmenities)
		s += float64(matched) / float64(len(niceToHave)) * 10
	} else {
		s += 5
	}
	return math.Min(30, s)
}

// fuzzyMatchCount counts wanted amenities satisfied by have: exact, then
// alias, then at least half of the wanted tokens appearing in one amenity.
func fuzzyMatchCount(wanted, have map[string]struct{}) int {
	matched := 0
	for w := range wanted {
		if _, ok := have[w]; ok {
			matched++
			continue
		}
		if alias := amenityAliases[w]; alias != "" {
			if _, ok := have[alias]; ok {
				matched++
				continue
			}
		}
		wTokens := tokenSet(w)
		for h := range have {
			hTokens := tokenSet(h)
			if len(wTokens) == 0 || len(hTokens) == 0 {
				continue
			}
			common := 0
			for t := range wTokens {
				if _, ok := hTokens[t]; ok {
					common++
				}
			}
			if float64(common) >= float64(len(wTokens))*0.5 {
				matched++
				break
			}
		}
	}
	return matched
}

func amenitySet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if a := strings.ToLower(strings.TrimSpace(part)); a != "" {
				out[a] = struct{}{}
			}
		}
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, f := range strings.Fields(s) {
		out[f] = struct{}{}
	}
	return out
}

// Indicator labels a score for display.
func Indicator(score float64) string {
	switch {
	case score >= 80:
		return "Excellent Match"
	case score >= 60:
		return "Good Match"
	case score >= 40:
		return "Fair Match"
	default:
		return "Low Match"
	}
}

// ParseNumber keeps only digits and dots, so "₹12,500/month" is 12500.
func ParseNumber(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return f
}

// Rank sorts items by score, highest first, keeping the input order of ties.
func Rank[T any](items []T, score func(T) float64) {
	slices.SortStableFunc(items, func(a, b T) int {
		return cmp.Compare(score(b), score(a))
	})
}
