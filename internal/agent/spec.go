package agent

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/aiox-platform/bookingbot/internal/language"
)

// Tier selects the model an agent runs on.
type Tier string

const (
	TierFast    Tier = "fast"
	TierCapable Tier = "capable"
)

// Spec describes one specialist: its prompt, the tools it may call and the
// model tier it runs on.
type Spec struct {
	Name   Name
	Tier   Tier
	Tools  []string
	prompt *template.Template
}

var bookingBaseTools = []string{
	"save_phone_number",
	"save_visit_time",
	"save_call_time",
	"create_payment_link",
	"verify_payment",
	"check_reserve_bed",
	"reserve_bed",
	"cancel_booking",
	"reschedule_booking",
}

var kycTools = []string{"fetch_kyc_status", "initiate_kyc", "verify_kyc"}

// SpecFor returns the spec for name. Unknown names get the default agent.
func SpecFor(name Name, kycEnabled bool) Spec {
	switch name {
	case Broker:
		return Spec{Name: Broker, Tier: TierFast, prompt: brokerPrompt, Tools: []string{
			"save_preferences",
			"search_properties",
			"fetch_property_details",
			"shortlist_property",
			"fetch_property_images",
			"fetch_landmarks",
			"fetch_nearby_places",
			"fetch_room_details",
			"fetch_properties_by_query",
			"compare_properties",
		}}
	case Booking:
		list := append([]string(nil), bookingBaseTools...)
		if kycEnabled {
			list = append(list, kycTools...)
		}
		list = append(list, "save_preferences")
		return Spec{Name: Booking, Tier: TierCapable, prompt: bookingPrompt, Tools: list}
	case Profile:
		return Spec{Name: Profile, Tier: TierFast, prompt: profilePrompt, Tools: []string{
			"fetch_profile_details",
			"get_scheduled_events",
			"get_shortlisted_properties",
		}}
	default:
		return Spec{Name: Default, Tier: TierFast, prompt: defaultPrompt, Tools: []string{"brand_info"}}
	}
}

// PromptData fills an agent's prompt template.
type PromptData struct {
	BrandName        string
	Cities           string
	Areas            string
	Language         string
	ReturningContext string
	KYCEnabled       bool
	Now              time.Time
}

// PromptDataFrom reads the brand fields a client sent as account values.
func PromptDataFrom(account map[string]any) PromptData {
	d := PromptData{
		BrandName: accountString(account, "brand_name"),
		Cities:    accountString(account, "cities"),
		Areas:     accountString(account, "areas"),
	}
	if d.BrandName == "" {
		d.BrandName = "our platform"
	}
	return d
}

func accountString(account map[string]any, key string) string {
	switch v := account[key].(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// System renders the system prompt for d.
func (s Spec) System(d PromptData) (string, error) {
	if d.Now.IsZero() {
		d.Now = time.Now()
	}
	var b strings.Builder
	if err := s.prompt.Execute(&b, promptView{PromptData: d}); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", s.Name, err)
	}
	return b.String(), nil
}

type promptView struct {
	PromptData
}

func (v promptView) LanguageDirective() string { return language.Directive(v.Language) }
func (v promptView) Today() string             { return v.Now.Format("2006-01-02") }
func (v promptView) Weekday() string           { return v.Now.Weekday().String() }
