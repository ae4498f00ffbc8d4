package uiparts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aiox-platform/bookingbot/internal/userstate"
)

// Chip is one quick-reply button. Action is the message sent when tapped.
type Chip struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	Icon   string `json:"icon,omitempty"`
}

var labels = map[string]map[string]string{
	"en": {
		"details":      "Details",
		"visit":        "Schedule Visit",
		"compare":      "Compare",
		"shortlist":    "Shortlist",
		"more_options": "More Options",
		"see_rooms":    "See Rooms",
		"images":       "Photos",
		"commute":      "Commute Time",
		"my_bookings":  "My Bookings",
		"browse_more":  "Browse More",
		"ive_paid":     "I've Paid",
		"search_pgs":   "Search Properties",
		"diff_area":    "Different Area",
		"loved_it":     "Loved it!",
		"was_okay":     "It was okay",
		"not_for_me":   "Not for me",
		"search_here":  "Search PGs Here",
		"tell_more":    "Tell Me More",
	},
	"hi": {
		"details":      "Details",
		"visit":        "Visit Book Karo",
		"compare":      "Compare Karo",
		"shortlist":    "Shortlist Karo",
		"more_options": "Aur Options",
		"see_rooms":    "Rooms Dekho",
		"images":       "Photos Dekho",
		"commute":      "Kitna Door Hai?",
		"my_bookings":  "Meri Bookings",
		"browse_more":  "Aur Dekho",
		"ive_paid":     "Payment Ho Gaya",
		"search_pgs":   "PG Search Karo",
		"diff_area":    "Alag Area",
		"loved_it":     "Bahut Pasand Aaya!",
		"was_okay":     "Theek Tha",
		"not_for_me":   "Pasand Nahi Aaya",
		"search_here":  "Yahan PG Dhundho",
		"tell_more":    "Aur Batao",
	},
}

func label(key, locale string) string {
	if l, ok := labels[locale][key]; ok {
		return l
	}
	return labels["en"][key]
}

var (
	boldListingRe   = regexp.MustCompile(`\*\*(\d+)\.\s+([^*\n]+?)\*\*`)
	headerListingRe = regexp.MustCompile(`(?m)^#{1,3}\s+(?:[^\d\n]*?)(\d+)\.\s+(.+?)$`)
	trailingDashRe  = regexp.MustCompile(`\s*[—–\-|]\s*$`)
	multiBoldRe     = regexp.MustCompile(`\*\*[2-9]\.\s`)
	multiHeaderRe   = regexp.MustCompile(`(?m)^#{1,3}\s+[^\d\n]*[2-9]\.\s`)
	oneBoldRe       = regexp.MustCompile(`\*\*1\.\s`)
	oneHeaderRe     = regexp.MustCompile(`(?m)^#{1,3}\s+[^\d\n]*1\.\s`)
	quotedNameRe    = regexp.MustCompile(`'([^'\n]{3,50})'`)
	boldNameRe      = regexp.MustCompile(`\*\*([^*\d][^*\n]{2,40})\*\*`)
	trailingPunctRe = regexp.MustCompile(`\s*[—–\-|:]\s*$`)
)

type listed struct {
	num  int
	name string
}

func listedProperties(text string, cached []userstate.Property) []listed {
	var out []listed
	seen := map[int]bool{}
	collect := func(re *regexp.Regexp) {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			n, _ := strconv.Atoi(m[1])
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, listed{num: n, name: strings.TrimSpace(trailingDashRe.ReplaceAllString(m[2], ""))})
		}
	}
	collect(boldListingRe)
	if len(out) == 0 {
		collect(headerListingRe)
	}
	for i := range out {
		if out[i].name == "" && i < len(cached) {
			out[i].name = cached[i].Name
		}
	}
	return out
}

func singleName(text string) string {
	if m := quotedNameRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := boldNameRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(trailingPunctRe.ReplaceAllString(m[1], ""))
	}
	return ""
}

type replyContext struct {
	multi, one                                       bool
	qualifying, comparison, commute, visitFeedback   bool
	shortlisted, areaInfo, propertyDetail, confirmed bool
	payment                                          bool
}

func containsAny(lower string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func detect(text string) replyContext {
	lower := strings.ToLower(text)
	multi := multiBoldRe.MatchString(text) || multiHeaderRe.MatchString(text)
	one := (oneBoldRe.MatchString(text) || oneHeaderRe.MatchString(text)) && !multi

	return replyContext{
		multi: multi,
		one:   one,
		qualifying: containsAny(lower, "quick —", "quick—", "must-haves from", "has some great options", "just share what matters") ||
			(strings.Contains(lower, "boys") && strings.Contains(lower, "girls") && strings.Contains(lower, "monthly budget")),
		comparison:    containsAny(lower, "comparison", "⚖") || (strings.Contains(lower, "compare") && !multi),
		commute:       containsAny(lower, "commute", "🚗", "🚇", "by car", "by metro"),
		visitFeedback: containsAny(lower, "how was your visit", "how did the visit go", "how did it go"),
		shortlisted:   containsAny(lower, "shortlist", "saved"),
		areaInfo:      containsAny(lower, "neighborhood", "from what i know") || (strings.Contains(lower, "area") && strings.Contains(lower, "search")),
		propertyDetail: containsAny(lower, "rent starts from", "here's what we have", "type: flat", "type: pg", "type: hostel", "type: co-living") ||
			(strings.Contains(lower, "₹") && strings.Contains(lower, "/month") && strings.Contains(lower, "📍")),
		confirmed: containsAny(lower, "confirmed", "scheduled", "booked"),
		payment:   containsAny(lower, "payment", "token") || (strings.Contains(lower, "link") && (strings.Contains(lower, "pay") || strings.Contains(lower, "₹"))),
	}
}

// Chips returns the quick replies for a reply written by agent.
func Chips(text, agent, locale string, cached []userstate.Property) []Chip {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if _, ok := labels[locale]; !ok {
		locale = "en"
	}
	ctx := detect(text)

	switch agent {
	case "broker":
		return brokerChips(text, ctx, locale, cached)
	case "booking":
		var chips []Chip
		if ctx.confirmed {
			chips = append(chips,
				Chip{"📋 " + label("my_bookings", locale), "Show my upcoming visits", "list"},
				Chip{"🔍 " + label("browse_more", locale), "Show me more properties", "search"},
			)
		}
		if ctx.payment {
			chips = append(chips, Chip{"✅ " + label("ive_paid", locale), "I have completed the payment", "check"})
		}
		return chips
	case "profile", "default":
		return []Chip{{"🔍 " + label("search_pgs", locale), "Show me properties in Mumbai", "search"}}
	}
	return nil
}

func orDefault(name, withName, without string) string {
	if name == "" {
		return without
	}
	return fmt.Sprintf(withName, name)
}

func truncateName(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func brokerChips(text string, ctx replyContext, locale string, cached []userstate.Property) []Chip {
	props := listedProperties(text, cached)

	visit := func(name string) Chip {
		return Chip{"📅 " + label("visit", locale), orDefault(name, "Schedule a visit for %s", "Schedule a visit"), "calendar"}
	}
	shortlist := func(name string) Chip {
		return Chip{"⭐ " + label("shortlist", locale), orDefault(name, "Shortlist %s", "Shortlist this property"), "star"}
	}
	rooms := func(name string) Chip {
		return Chip{"🛏️ " + label("see_rooms", locale), orDefault(name, "Show me room options for %s", "Show me room options and pricing"), "bed"}
	}
	moreOptions := Chip{"🔍 " + label("more_options", locale), "Show me more options", "search"}

	switch {
	case ctx.qualifying:
		return nil
	case ctx.visitFeedback:
		return []Chip{
			{"❤️ " + label("loved_it", locale), "I loved it! I want to book this property", "heart"},
			{"🤔 " + label("was_okay", locale), "It was okay, but I'm not sure yet", "think"},
			{"👎 " + label("not_for_me", locale), "Not for me. The property didn't match my expectations", "thumbs_down"},
		}
	case ctx.comparison && len(props) >= 2:
		return []Chip{
			{"📅 Visit " + truncateName(props[0].name, 20), "Schedule a visit for " + props[0].name, "calendar"},
			{"📅 Visit " + truncateName(props[1].name, 20), "Schedule a visit for " + props[1].name, "calendar"},
			moreOptions,
		}
	case ctx.multi && len(props) >= 2:
		p1, p2 := props[0], props[1]
		chips := []Chip{
			{fmt.Sprintf("📋 #%d %s", p1.num, label("details", locale)), "Tell me more about " + p1.name, "info"},
			{fmt.Sprintf("📅 #%d %s", p1.num, label("visit", locale)), "Schedule a visit for " + p1.name, "calendar"},
			{fmt.Sprintf("⚖️ #%d vs #%d", p1.num, p2.num), fmt.Sprintf("Compare %s and %s", p1.name, p2.name), "compare"},
		}
		if len(props) >= 3 {
			return append(chips, Chip{fmt.Sprintf("📋 #%d %s", props[2].num, label("details", locale)), "Tell me more about " + props[2].name, "info"})
		}
		return append(chips, Chip{"⭐ " + label("shortlist", locale), "Shortlist " + p1.name, "star"})
	case ctx.multi:
		return []Chip{
			{"📋 " + label("details", locale), "Tell me more about the first property", "info"},
			{"📅 " + label("visit", locale), "Schedule a visit", "calendar"},
			{"⭐ " + label("shortlist", locale), "Shortlist the first property", "star"},
			{"⚖️ " + label("compare", locale), "Compare the top 2 properties", "compare"},
		}
	case ctx.commute:
		name := singleName(text)
		return []Chip{visit(name), shortlist(name), moreOptions}
	case ctx.one:
		name := ""
		if len(props) > 0 {
			name = props[0].name
		}
		return []Chip{visit(name), shortlist(name), rooms(name),
			{"📷 " + label("images", locale), orDefault(name, "Show me photos of %s", "Show me photos"), "camera"}}
	case ctx.shortlisted:
		return []Chip{visit(singleName(text)), {"🔍 " + label("more_options", locale), "Show me more properties", "search"}}
	case ctx.areaInfo:
		return []Chip{
			{"🔍 " + label("search_here", locale), "Search for PGs here", "search"},
			{"ℹ️ " + label("tell_more", locale), "Tell me more about the area", "info"},
		}
	case ctx.propertyDetail:
		name := singleName(text)
		return []Chip{visit(name), shortlist(name), rooms(name),
			{"🚗 " + label("commute", locale), orDefault(name, "How far is %s from my office?", "How far is this from my office?"), "car"}}
	}
	return []Chip{
		{"🔍 " + label("search_pgs", locale), "Show me properties in Mumbai", "search"},
		{"📍 " + label("diff_area", locale), "Search in a different area", "location"},
	}
}
