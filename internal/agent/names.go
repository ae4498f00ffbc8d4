package agent

// Name identifies a specialist agent.
type Name string

const (
	Default Name = "default"
	Broker  Name = "broker"
	Booking Name = "booking"
	Profile Name = "profile"
)

// Names lists every routable agent.
var Names = []Name{Default, Broker, Booking, Profile}

// Parse returns the agent for s, or false when s names no agent.
func Parse(s string) (Name, bool) {
	for _, n := range Names {
		if string(n) == s {
			return n, true
		}
	}
	return "", false
}
