package followup

import "fmt"

// Render builds the user-facing text for an entry. shortlisted is the number
// of properties the user has shortlisted. Unknown types report false.
func Render(e Entry, shortlisted int) (string, bool) {
	prop := e.Data["property_name"]
	if prop == "" {
		prop = "your shortlisted property"
	}

	switch e.Type {
	case VisitComplete:
		return fmt.Sprintf("Hey! How was your visit to %s? 🏠\n\n"+
			"Quick feedback:\n"+
			"1️⃣ Loved it — I want to book!\n"+
			"2️⃣ It was okay\n"+
			"3️⃣ Not for me\n\n"+
			"Just reply with 1, 2, or 3 and I'll take it from there!", prop), true

	case PaymentPending:
		return fmt.Sprintf("Just a friendly reminder — your payment link for %s is still active (₹%s).\n\n"+
			"%s\n\n"+
			"Complete it to lock in your reservation. Let me know if you have any questions!",
			prop, e.Data["amount"], e.Data["link"]), true

	case ShortlistIdle:
		msg := fmt.Sprintf("Hey! You shortlisted %s a couple of days ago. Still interested? 🤔\n\n", prop)
		if shortlisted > 1 {
			msg += fmt.Sprintf("You have %d properties shortlisted. "+
				"Want me to compare them or schedule a visit to your top pick?", shortlisted)
		} else {
			msg += "Want me to show you more details, schedule a visit, or look for other options nearby?"
		}
		return msg, true
	}
	return "", false
}
