package routing

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/aiox-platform/bookingbot/internal/agent"
)

// Phrases resolve words that are ambiguous on their own: "my visits" is a
// query for profile while "schedule a visit" is a booking action.
var profilePhrases = []string{
	"my visit", "my visits", "my booking", "my bookings",
	"my schedule", "my event", "my events",
	"my preference", "my preferences", "my profile",
	"shortlisted propert", "saved propert",
	"booking status", "visit status", "scheduled event",
}

var brokerPhrases = []string{
	"more about", "tell me about",
	"details of", "details about", "details for",
	"images of", "photos of", "pictures of",
	"far from", "distance from", "distance to",
	"shortlist this", "shortlist the",
}

var profileWords = wordSet(
	"profile", "preference", "preferences", "upcoming",
	"events", "visits", "bookings", "shortlisted",
)

var bookingWords = wordSet(
	"visit", "schedule", "book", "appointment", "call", "video",
	"tour", "payment", "pay", "token", "kyc", "aadhaar", "otp",
	"reserve", "cancel", "reschedule",
)

var brokerWords = wordSet(
	"find", "search", "looking", "property", "properties",
	"pg", "flat", "apartment", "hostel", "coliving", "co-living",
	"room", "rent", "budget", "area", "location", "available",
	"recommend", "suggest", "bhk", "1bhk", "2bhk", "rk",
	"single", "double", "girls", "boys", "sharing",
	"place", "stay", "accommodation", "housing", "near", "nearby",
	"shortlist", "details", "images", "photos",
	"landmark", "landmarks", "distance", "far",
	// Hinglish
	"kamra", "kiraya", "ghar", "chahiye", "dikhao", "jagah", "rehne",
	// Marathi
	"खोली", "भाडे", "जागा", "पाहिजे", "दाखवा", "शोधा", "बुकिंग",
)

var affirmatives = wordSet(
	"yes", "ok", "okay", "sure", "go ahead", "please",
	"yeah", "yep", "yup", "haan", "ha", "theek hai",
	"kar do", "ho jayega", "confirm", "done", "proceed",
	"हो", "चालेल", "ठीक आहे",
)

var newIntentWords = wordSet(
	"hello", "hi", "hey", "howdy", "namaste",
	"thanks", "thank", "bye", "goodbye",
	"what", "who", "where", "when", "how", "why", "which",
)

const maxContinuationWords = 5

// LastAgentSource returns the agent that handled the user's previous turn.
type LastAgentSource interface {
	LastAgent(ctx context.Context, userID string) (string, error)
}

// SafetyNet corrects supervisor verdicts of "default" that keywords or the
// previous turn clearly contradict. Specialist verdicts pass through.
type SafetyNet struct {
	last LastAgentSource
}

func NewSafetyNet(last LastAgentSource) *SafetyNet {
	return &SafetyNet{last: last}
}

// Apply returns the corrected agent and whether the net changed it.
func (n *SafetyNet) Apply(ctx context.Context, routed agent.Name, message, userID string) (agent.Name, bool) {
	if routed != agent.Default {
		return routed, false
	}

	lower := strings.ToLower(message)
	words := tokenize(lower)

	if name := matchKeywords(lower, words); name != agent.Default {
		return name, true
	}

	if n.last == nil {
		return agent.Default, false
	}
	lastName, err := n.last.LastAgent(ctx, userID)
	if err != nil {
		slog.Warn("reading last agent failed", "user_id", userID, "error", err)
		return agent.Default, false
	}
	last, ok := agent.Parse(lastName)
	if !ok || last == agent.Default {
		return agent.Default, false
	}

	stripped := strings.TrimRight(strings.TrimSpace(lower), ".!,?")
	_, affirmative := affirmatives[stripped]
	if affirmative || (len(strings.Fields(message)) <= maxContinuationWords && !intersects(words, newIntentWords)) {
		slog.Debug("continuing with last agent", "user_id", userID, "agent", last)
		return last, true
	}
	return agent.Default, false
}

// matchKeywords runs the phrase phase and then the single-word phase.
func matchKeywords(lower string, words map[string]struct{}) agent.Name {
	switch {
	case containsAny(lower, profilePhrases):
		return agent.Profile
	case containsAny(lower, brokerPhrases):
		return agent.Broker
	case intersects(words, profileWords):
		return agent.Profile
	case intersects(words, bookingWords):
		return agent.Booking
	case intersects(words, brokerWords):
		return agent.Broker
	default:
		return agent.Default
	}
}

// tokenize replaces everything except letters, combining marks, digits,
// '_' and '-' with spaces and returns the distinct words.
func tokenize(lower string) map[string]struct{} {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			return r
		}
		return ' '
	}, lower)
	return wordSet(strings.Fields(clean)...)
}

func wordSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func intersects(a, b map[string]struct{}) bool {
	for w := range a {
		if _, ok := b[w]; ok {
			return true
		}
	}
	return false
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
