package usermemory

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	maxViewed       = 50
	maxShortlisted  = 20
	maxVisits       = 20
	maxDealBreakers = 10
)

// Funnel stages, shallowest first.
const (
	FunnelNone      = ""
	FunnelSearch    = "search"
	FunnelShortlist = "shortlist"
	FunnelVisit     = "visit"
)

var funnelRank = map[string]int{FunnelNone: 0, FunnelSearch: 1, FunnelShortlist: 2, FunnelVisit: 3}

// Record is the durable engagement profile of one user.
type Record struct {
	SessionCount          int       `json:"session_count"`
	PropertiesViewed      []string  `json:"properties_viewed,omitempty"`
	PropertiesShortlisted []string  `json:"properties_shortlisted,omitempty"`
	VisitsScheduled       []string  `json:"visits_scheduled,omitempty"`
	DealBreakers          []string  `json:"deal_breakers,omitempty"`
	Persona               string    `json:"persona,omitempty"`
	LeadScore             int       `json:"lead_score"`
	Temperature           string    `json:"temperature"`
	FunnelMax             string    `json:"funnel_max,omitempty"`
	PhoneCollected        bool      `json:"phone_collected"`
	PreferencesComplete   float64   `json:"preferences_complete"`
	FirstSeen             time.Time `json:"first_seen"`
	LastSeen              time.Time `json:"last_seen"`
	// PreviousSeen is last_seen as it stood when the current session began.
	PreviousSeen time.Time `json:"previous_seen,omitzero"`
	// Decay is the penalty for the absence before the current activity. It
	// holds until the next gap of a full week or a fresh session.
	Decay int `json:"decay,omitempty"`
}

// LeadScore weighs engagement signals into 0-100 and decays 5 points per
// full week between lastSeen and now.
func LeadScore(r Record, lastSeen, now time.Time) int {
	return max(0, min(100, baseScore(r)-decayFor(lastSeen, now)))
}

func baseScore(r Record) int {
	score := min(20, 4*r.SessionCount) +
		min(15, 3*len(r.PropertiesViewed)) +
		min(15, 5*len(r.PropertiesShortlisted)) +
		min(20, 10*len(r.VisitsScheduled))
	if r.PhoneCollected {
		score += 10
	}
	score += int(math.Round(10 * math.Min(1, math.Max(0, r.PreferencesComplete))))
	return score
}

// decayFor is 5 points per full week between lastSeen and now.
func decayFor(lastSeen, now time.Time) int {
	if lastSeen.IsZero() || !now.After(lastSeen) {
		return 0
	}
	return 5 * int(now.Sub(lastSeen)/(7*24*time.Hour))
}

// Temperature buckets a lead score.
func Temperature(score int) string {
	switch {
	case score >= 70:
		return "hot"
	case score >= 40:
		return "warm"
	default:
		return "cold"
	}
}

func deriveFunnel(r Record) string {
	switch {
	case len(r.VisitsScheduled) > 0:
		return FunnelVisit
	case len(r.PropertiesShortlisted) > 0:
		return FunnelShortlist
	case len(r.PropertiesViewed) > 0:
		return FunnelSearch
	default:
		return FunnelNone
	}
}

// recompute refreshes the derived fields. prevSeen is the last_seen value
// before this update. A gap of a full week replaces the stored decay, so
// later updates in the same visit keep the penalty.
func (r *Record) recompute(prevSeen, now time.Time) {
	if r.FirstSeen.IsZero() {
		r.FirstSeen = now
	}
	r.LastSeen = now
	if d := decayFor(prevSeen, now); d > 0 {
		r.Decay = d
	}
	r.LeadScore = max(0, min(100, baseScore(*r)-r.Decay))
	r.Temperature = Temperature(r.LeadScore)
	if f := deriveFunnel(*r); funnelRank[f] > funnelRank[r.FunnelMax] {
		r.FunnelMax = f
	}
}

// appendCapped adds ids not already present and keeps the newest limit.
func appendCapped(list []string, limit int, ids ...string) []string {
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		dup := false
		for _, existing := range list {
			if existing == id {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, id)
		}
	}
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list
}

// addDealBreakers dedups case-insensitively and keeps the first limit.
func addDealBreakers(list []string, items ...string) []string {
	seen := make(map[string]bool, len(list))
	for _, existing := range list {
		seen[strings.ToLower(existing)] = true
	}
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[strings.ToLower(item)] || len(list) >= maxDealBreakers {
			continue
		}
		seen[strings.ToLower(item)] = true
		list = append(list, item)
	}
	return list
}

var personaKeywords = []struct {
	persona  string
	keywords []string
}{
	{"professional", []string{"office", "work", "working", "job", "company", "corporate", "employee", "salary", "it park", "tech park", "wfh", "shift"}},
	{"student", []string{"college", "university", "student", "exam", "campus", "studies", "course", "coaching", "internship", "semester", "hostel"}},
	{"family", []string{"family", "wife", "husband", "kids", "children", "parents", "spouse", "baby", "school", "2bhk", "3bhk"}},
}

// DetectPersona returns the bucket with the most keyword hits in text, or
// "" when nothing matches. Ties go to the earlier bucket.
func DetectPersona(text string) string {
	words := " " + strings.Join(strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), " ") + " "

	best, bestHits := "", 0
	for _, bucket := range personaKeywords {
		hits := 0
		for _, kw := range bucket.keywords {
			if strings.Contains(words, " "+kw+" ") {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = bucket.persona, hits
		}
	}
	return best
}

// ReturningContext renders a short note about a returning user for agent
// prompts. First-session users get "".
func ReturningContext(r Record, now time.Time) string {
	if r.SessionCount <= 1 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Returning user (session %d", r.SessionCount)
	seen := r.PreviousSeen
	if seen.IsZero() {
		seen = r.LastSeen
	}
	if !seen.IsZero() {
		days := int(now.Sub(seen).Hours() / 24)
		if days > 0 {
			fmt.Fprintf(&b, ", last active %d days ago", days)
		}
	}
	b.WriteString(").")
	if r.Persona != "" {
		fmt.Fprintf(&b, " Persona: %s.", r.Persona)
	}
	fmt.Fprintf(&b, " Lead: %s (%d/100).", Temperature(r.LeadScore), r.LeadScore)
	if n := len(r.PropertiesViewed); n > 0 {
		fmt.Fprintf(&b, " Viewed %d properties", n)
		if s := len(r.PropertiesShortlisted); s > 0 {
			fmt.Fprintf(&b, ", shortlisted %d", s)
		}
		if v := len(r.VisitsScheduled); v > 0 {
			fmt.Fprintf(&b, ", scheduled %d visits", v)
		}
		b.WriteString(".")
	}
	if len(r.DealBreakers) > 0 {
		fmt.Fprintf(&b, " Deal-breakers: %s.", strings.Join(r.DealBreakers, ", "))
	}
	return b.String()
}
