// Package uiparts turns an agent's markdown reply into typed parts the chat
// frontend renders directly: text, property carousels, comparison tables and
// quick-reply chips.
package uiparts

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/aiox-platform/bookingbot/internal/userstate"
)

const (
	TypeText            = "text"
	TypeCarousel        = "property_carousel"
	TypeComparisonTable = "comparison_table"
	TypeQuickReplies    = "quick_replies"
)

type Part struct {
	Type       string     `json:"type"`
	Markdown   string     `json:"markdown,omitempty"`
	Properties []Card     `json:"properties,omitempty"`
	MapCenter  *LatLng    `json:"map_center,omitempty"`
	Headers    []string   `json:"headers,omitempty"`
	Rows       [][]string `json:"rows,omitempty"`
	Winner     string     `json:"winner,omitempty"`
	Chips      []Chip     `json:"chips,omitempty"`
}

// Card is one property in a carousel.
type Card struct {
	Name      string `json:"name"`
	Location  string `json:"location"`
	Rent      string `json:"rent"`
	Gender    string `json:"gender"`
	Distance  string `json:"distance"`
	Image     string `json:"image"`
	Link      string `json:"link"`
	Lat       string `json:"lat"`
	Lng       string `json:"lng"`
	Score     string `json:"score"`
	Amenities string `json:"amenities"`
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func textPart(md string) Part { return Part{Type: TypeText, Markdown: md} }

// Build returns the parts for a reply: the parsed message followed by
// chips for the agent that wrote it. cached holds the user's last search
// results and fills gaps the text leaves.
func Build(text, agent, locale string, cached []userstate.Property) []Part {
	parts := Parse(text, cached)
	if chips := Chips(text, agent, locale, cached); len(chips) > 0 {
		parts = append(parts, Part{Type: TypeQuickReplies, Chips: chips})
	}
	return parts
}

var (
	pipeLineRe  = regexp.MustCompile(`\|.*\|`)
	compactRe   = regexp.MustCompile(`\*\*(\d+)\.\s+(.+?)\*\*\s*\n(📍.+)`)
	legacyRe    = regexp.MustCompile(`\*\*(\d+)\.\s*(.+?)\*\*\s*[—–\-]\s*(₹[\d,]+(?:/\s*(?:month|mo))?)`)
	headerRe    = regexp.MustCompile(`(?m)^#{1,3}\s+[^\d\n]*(\d+)\.\s+(.+)$`)
	separatorRe = regexp.MustCompile(`^\s*\|?\s*[-:]+\s*[|\-]`)
	winnerRe    = regexp.MustCompile(`(?i)🏆|best pick|pick:|recommended`)
	winnerCut   = regexp.MustCompile(`(?i)🏆|best pick:|pick:`)
	rentRe      = regexp.MustCompile(`₹[\d,]+(?:/mo(?:nth)?)?`)
	blockRentRe = regexp.MustCompile(`(?:💰|[Rr]ent)[^\n]*(₹[\d,]+)`)
	locationRe  = regexp.MustCompile(`📍\s*([^\n]+)`)
	genderRe    = regexp.MustCompile(`(?i)^(Any|Boys|Girls|All Boys|All Girls|Mixed)`)
	distanceRe  = regexp.MustCompile(`(?i)~?[\d.]+\s*km`)
	imageRe     = regexp.MustCompile(`(?i)(?:Image:\s*|!\[[^\]]*\]\()(https?://[^\s)]+)`)
	linkRe      = regexp.MustCompile(`(?i)Link:\s*(https?://\S+)`)
	closeSepRe  = regexp.MustCompile(`\n[-*]{3,}\s*(?:\n|$)`)
	metaLineRe  = regexp.MustCompile(`(?im)^(?:Image|Link|Match|Distance|For|Type):.*$`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// Parse splits markdown into parts. Pipe tables become comparison tables,
// numbered property listings become a carousel, anything else is one text
// part.
func Parse(md string, cached []userstate.Property) []Part {
	if strings.TrimSpace(md) == "" {
		return []Part{textPart(md)}
	}

	pipes := 0
	for _, line := range strings.Split(md, "\n") {
		if pipeLineRe.MatchString(line) {
			pipes++
		}
	}
	if pipes >= 3 {
		if parts := comparisonSegments(md); len(parts) > 0 {
			return parts
		}
	}

	if m := compactRe.FindAllStringSubmatchIndex(md, -1); len(m) > 0 {
		return carousel(md, m, formatCompact, cached)
	}
	if m := legacyRe.FindAllStringSubmatchIndex(md, -1); len(m) > 0 {
		return carousel(md, m, formatLegacy, cached)
	}
	if m := headerRe.FindAllStringSubmatchIndex(md, -1); len(m) > 0 {
		return carousel(md, m, formatHeader, cached)
	}
	return []Part{textPart(md)}
}

func comparisonSegments(md string) []Part {
	var parts []Part
	var buf, table []string
	flushText := func() {
		if s := strings.TrimSpace(strings.Join(buf, "\n")); s != "" {
			parts = append(parts, textPart(s))
		}
		buf = nil
	}
	closeTable := func() {
		if len(table) >= 3 {
			flushText()
			parts = append(parts, tablePart(table))
		} else {
			buf = append(buf, table...)
		}
		table = nil
	}

	for _, line := range strings.Split(md, "\n") {
		if pipeLineRe.MatchString(line) {
			table = append(table, line)
			continue
		}
		if len(table) > 0 {
			closeTable()
		}
		buf = append(buf, line)
	}
	if len(table) > 0 {
		closeTable()
	}
	flushText()
	return parts
}

func tablePart(lines []string) Part {
	var data []string
	for _, l := range lines {
		if !separatorRe.MatchString(l) {
			data = append(data, l)
		}
	}
	if len(data) < 2 {
		return textPart(strings.Join(lines, "\n"))
	}

	p := Part{Type: TypeComparisonTable, Headers: row(data[0])}
	for _, l := range data[1:] {
		cells := row(l)
		joined := strings.Join(cells, " ")
		if winnerRe.MatchString(joined) {
			p.Winner = strings.TrimSpace(winnerCut.ReplaceAllString(joined, ""))
			continue
		}
		p.Rows = append(p.Rows, cells)
	}
	return p
}

func row(line string) []string {
	var cells []string
	for _, c := range strings.Split(line, "|") {
		if c = strings.TrimSpace(c); c != "" {
			cells = append(cells, c)
		}
	}
	return cells
}

type listingFormat int

const (
	formatCompact listingFormat = iota
	formatLegacy
	formatHeader
)

func carousel(md string, matches [][]int, format listingFormat, cached []userstate.Property) []Part {
	cards := make([]Card, 0, len(matches))
	for i, m := range matches {
		end := len(md)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		block := md[m[0]:end]
		card := Card{Name: strings.TrimSpace(md[m[4]:m[5]])}

		switch format {
		case formatCompact:
			meta := strings.TrimSpace(md[m[6]:m[7]])
			fields := strings.Split(strings.TrimSpace(strings.TrimPrefix(meta, "📍")), "·")
			for j := range fields {
				fields[j] = strings.TrimSpace(fields[j])
			}
			card.Location = fields[0]
			card.Rent = strings.Replace(rentRe.FindString(meta), "/month", "/mo", 1)
			for _, f := range fields {
				switch {
				case genderRe.MatchString(f):
					card.Gender = f
				case distanceRe.MatchString(f):
					card.Distance = f
				}
			}
		default:
			if format == formatLegacy {
				card.Rent = strings.TrimSpace(md[m[6]:m[7]])
			}
			if card.Rent == "" {
				if sm := blockRentRe.FindStringSubmatch(block); sm != nil {
					card.Rent = sm[1]
				}
			}
			if sm := locationRe.FindStringSubmatch(block); sm != nil {
				card.Location = strings.TrimSpace(strings.Split(sm[1], "·")[0])
			}
		}

		if sm := imageRe.FindStringSubmatch(block); sm != nil {
			card.Image = sm[1]
		}
		if sm := linkRe.FindStringSubmatch(block); sm != nil {
			card.Link = sm[1]
		}
		if p, ok := findCached(card.Name, cached); ok {
			enrich(&card, p)
		}
		cards = append(cards, card)
	}

	var parts []Part
	if pre := strings.TrimSpace(md[:matches[0][0]]); pre != "" {
		parts = append(parts, textPart(pre))
	}
	parts = append(parts, Part{Type: TypeCarousel, Properties: cards, MapCenter: mapCenter(cards)})
	if post := trailingText(md[matches[len(matches)-1][0]:]); post != "" {
		parts = append(parts, textPart(post))
	}
	return parts
}

func enrich(c *Card, p userstate.Property) {
	if c.Image == "" {
		c.Image = p.Image
	}
	if c.Link == "" {
		c.Link = p.Link
	}
	if c.Rent == "" {
		c.Rent = p.Rent
	}
	if c.Location == "" {
		c.Location = p.Location
	}
	if c.Gender == "" {
		c.Gender = p.AvailableFor
	}
	if p.Lat != 0 && p.Lng != 0 {
		c.Lat = strconv.FormatFloat(p.Lat, 'f', -1, 64)
		c.Lng = strconv.FormatFloat(p.Lng, 'f', -1, 64)
	}
	if p.MatchScore > 0 {
		c.Score = strconv.Itoa(int(math.Round(p.MatchScore)))
	}
	c.Amenities = p.Amenities
}

// trailingText is the prose after the last listing block: either after a
// horizontal rule or after the first blank line not followed by listing
// metadata.
func trailingText(last string) string {
	var post string
	if loc := closeSepRe.FindStringIndex(last); loc != nil {
		post = last[loc[1]:]
	} else {
		for i := 0; i < len(last); {
			j := strings.Index(last[i:], "\n\n")
			if j < 0 {
				break
			}
			at := i + j
			if !listingMeta(strings.TrimLeft(last[at+2:], " \t\n")) {
				post = last[at:]
				break
			}
			i = at + 2
		}
	}
	post = metaLineRe.ReplaceAllString(post, "")
	return strings.TrimSpace(blankRunRe.ReplaceAllString(post, "\n\n"))
}

func listingMeta(s string) bool {
	for _, prefix := range []string{"📍", "💰", "👥", "🏷", "#"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func mapCenter(cards []Card) *LatLng {
	var sumLat, sumLng float64
	n := 0
	for _, c := range cards {
		lat, err1 := strconv.ParseFloat(c.Lat, 64)
		lng, err2 := strconv.ParseFloat(c.Lng, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		sumLat += lat
		sumLng += lng
		n++
	}
	if n == 0 {
		return nil
	}
	return &LatLng{Lat: sumLat / float64(n), Lng: sumLng / float64(n)}
}

// findCached matches by normalized name, newest entry first, then by
// containment either way.
func findCached(name string, cached []userstate.Property) (userstate.Property, bool) {
	want := normalize(name)
	if want == "" {
		return userstate.Property{}, false
	}
	for i := len(cached) - 1; i >= 0; i-- {
		if normalize(cached[i].Name) == want {
			return cached[i], true
		}
	}
	for i := len(cached) - 1; i >= 0; i-- {
		got := normalize(cached[i].Name)
		if got != "" && (strings.Contains(got, want) || strings.Contains(want, got)) {
			return cached[i], true
		}
	}
	return userstate.Property{}, false
}

func normalize(s string) string {
	return spaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}
