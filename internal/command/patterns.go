package command

import (
	"regexp"
	"strconv"
	"strings"
)

// pattern pairs an intent with a matcher. Named capture groups fill the
// slot of the same name.
type pattern struct {
	kind Kind
	re   *regexp.Regexp
}

func p(kind Kind, expr string) pattern {
	return pattern{kind: kind, re: regexp.MustCompile(expr)}
}

const reasonGroup = `(?: because (?P<reason>.+))?`

// patterns is evaluated in order against the normalised utterance; the
// first match wins.
var patterns = []pattern{
	p(KindHelp, `^(?:help|help me|commands|what can (?:i|you) (?:say|do)|(?:list|show)(?: me)? (?:the )?commands)$`),

	p(KindList, `^(?:list|show)(?: me)?(?: all)?(?: the)? (?:equipment|items|inventory|gear)(?: (?:that (?:is|are)|which (?:is|are)|with status|in status) (?P<status>.+))?$`),
	p(KindList, `^what(?: equipment| items)? (?:is|are) (?P<status>available|checked out|in use|reserved|overdue|in maintenance|damaged|broken|lost|missing|retired)$`),

	p(KindSetStatus, `^(?:mark|set|flag|change)(?: the status of)? (?P<equipment>.+?) (?:as|to) (?P<status>[a-z_ -]+?)`+reasonGroup+`$`),
	p(KindSetStatus, `^report (?P<equipment>.+?) (?:as )?(?P<status>damaged|broken|lost|missing|stolen)`+reasonGroup+`$`),
	p(KindSetStatus, `^send (?P<equipment>.+?) (?:to|for) (?P<status>maintenance|repair|service)`+reasonGroup+`$`),
	p(KindSetStatus, `^(?P<equipment>.+?) (?:is|was|got) (?P<status>broken|damaged|lost|missing|stolen)`+reasonGroup+`$`),

	p(KindGetStatus, `^(?:what(?:'s| is) the )?status (?:of|for) (?P<equipment>.+)$`),
	p(KindGetStatus, `^is (?P<equipment>.+?) (?:available|free|checked out|in use|out)$`),

	p(KindFind, `^(?:where(?:'s| is| are)|find|locate|look for) (?P<equipment>.+)$`),

	p(KindCheckin, `^(?:return|returning|check ?in|checking in|give back|bring back|hand in|drop off) (?P<equipment>.+?)(?: back)?$`),

	p(KindCheckout, `^(?:i want to |i'd like to |can i |could i |let me )?(?:check ?out|borrow|take|sign out|grab) (?P<equipment>.+?)(?: for (?P<duration>(?:\d+|a|an|one|two|three|four|five|six|seven|ten|fourteen) (?:days?|weeks?)))?$`),
}

// keywordKinds guesses an intent from keywords when only the equipment
// could be recognised. Checked in order.
var keywordKinds = []struct {
	kind     Kind
	keywords []string
}{
	{KindCheckout, []string{"checkout", "check out", "borrow", "take"}},
	{KindCheckin, []string{"return", "checkin", "check in", "give back"}},
	{KindFind, []string{"find", "where", "locate"}},
	{KindGetStatus, []string{"status"}},
}

func guessKind(text string) Kind {
	for _, k := range keywordKinds {
		for _, kw := range k.keywords {
			if strings.Contains(text, kw) {
				return k.kind
			}
		}
	}
	return KindFind
}

var (
	spaces        = regexp.MustCompile(`\s+`)
	leadingFiller = regexp.MustCompile(`^(?:(?:hey|ok|okay|please),? )+`)
	articles      = regexp.MustCompile(`^(?:the|a|an|my|our|this|that) `)
)

// normalize lower-cases the transcript, collapses whitespace and drops
// polite filler and trailing punctuation.
func normalize(transcript string) string {
	s := strings.ToLower(strings.TrimSpace(transcript))
	s = spaces.ReplaceAllString(s, " ")
	s = strings.TrimRight(s, ".!?, ")
	s = leadingFiller.ReplaceAllString(s, "")
	s = strings.TrimSuffix(s, " please")
	s = strings.TrimRight(s, ".!?, ")
	return s
}

func stripArticle(s string) string {
	return strings.TrimSpace(articles.ReplaceAllString(strings.TrimSpace(s), ""))
}

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "ten": 10, "fourteen": 14,
}

// parseDays converts "3 days" or "two weeks" to a number of days.
func parseDays(text string) (int, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return 0, false
	}
	n, ok := numberWords[fields[0]]
	if !ok {
		var err error
		if n, err = strconv.Atoi(fields[0]); err != nil {
			return 0, false
		}
	}
	if strings.HasPrefix(fields[1], "week") {
		n *= 7
	}
	if n <= 0 {
		return 0, false
	}
	return n, true
}
