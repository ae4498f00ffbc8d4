// Package language detects whether a chat message is English, Hindi or
// Marathi and renders the matching reply directive for agent prompts.
package language

import (
	"strings"
	"unicode"
)

const (
	English = "en"
	Hindi   = "hi"
	Marathi = "mr"
)

var names = map[string]string{
	English: "English",
	Hindi:   "Hindi (हिन्दी)",
	Marathi: "Marathi (मराठी)",
}

// Supported reports whether code is a language the bot replies in.
func Supported(code string) bool {
	_, ok := names[code]
	return ok
}

// Name returns the display name for code, falling back to English.
func Name(code string) string {
	if n, ok := names[code]; ok {
		return n
	}
	return names[English]
}

var marathiWords = set(
	"आहे", "नाही", "काय", "पाहिजे", "कसे", "कुठे", "मला", "तुम्ही",
	"आम्ही", "त्याला", "तिला", "हवे", "नको", "बघा", "सांगा", "करा",
	"होते", "असते", "दाखवा", "किती", "कोण", "जागा", "भाडे", "खोली",
	"महिना", "रुपये", "माहिती", "शोधा", "बुकिंग",
)

// Romanized Hinglish needs at least two hits.
var hinglishWords = set(
	"chahiye", "dikhao", "kamra", "kiraya", "kitna", "kahan", "kaise",
	"mujhe", "humko", "batao", "dekhna", "booking", "bhejo", "bhejiye",
	"karo", "kariye", "dijiye", "milega", "dedo", "dekho", "accha",
	"theek", "sahi", "nahi", "haan", "ji", "bhai", "yaar", "kya",
	"wala", "wali", "sala", "bata", "paise", "rupaye", "mahina",
	"jagah", "room", "flat", "pg", "hostel", "rent",
	"dhundho", "khojo", "pasand", "visit", "dekhne", "jaana",
	"paisa", "advance", "deposit", "shifting", "available",
)

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Detect classifies text. Devanagari-heavy text (30% or more of its letters)
// is Marathi when it contains a Marathi marker word and Hindi otherwise;
// Latin text with two or more Hinglish words is Hindi; everything else is
// English.
func Detect(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return English
	}

	if devanagariRatio(text) >= 0.30 {
		if countWords(strings.Fields(text), marathiWords) >= 1 {
			return Marathi
		}
		return Hindi
	}
	if countWords(strings.Fields(strings.ToLower(text)), hinglishWords) >= 2 {
		return Hindi
	}
	return English
}

func devanagariRatio(text string) float64 {
	var letters, deva int
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Mc, r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Devanagari, r) {
			deva++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(deva) / float64(letters)
}

// countWords counts distinct words of fields found in vocab.
func countWords(fields []string, vocab map[string]struct{}) int {
	seen := make(map[string]struct{}, len(fields))
	n := 0
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		if _, ok := vocab[f]; ok {
			n++
		}
	}
	return n
}

// Resolve picks the reply language for a turn: a detected non-English
// language wins, otherwise the user's stored choice applies.
func Resolve(detected, stored string) string {
	if detected != English {
		return detected
	}
	if Supported(stored) {
		return stored
	}
	return English
}

// Directive is the prompt block that pins the reply language. English needs
// no directive.
func Directive(code string) string {
	if code == English || !Supported(code) {
		return ""
	}
	n := Name(code)
	return "\nLANGUAGE INSTRUCTION (MANDATORY):\n" +
		"You MUST respond in " + n + ". The user is communicating in " + n + ".\n" +
		"- All conversational text, questions and explanations must be in " + n + ".\n" +
		"- Property names, area names and city names stay in their original form.\n" +
		"- Monetary values use the ₹ symbol regardless of language.\n" +
		"- If the user switches language mid-conversation, follow their lead.\n"
}
