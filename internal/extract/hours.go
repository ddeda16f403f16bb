// Package extract recovers structured venue facts from normalized page text
// using deterministic patterns. It is the tier-1 strategy: pure, synchronous,
// and never errors on well-formed input. Text it cannot parse simply yields
// an empty result.
package extract

import (
	"regexp"
	"strings"

	"github.com/venuewatch/refresh-cli/internal/model"
)

const (
	day       = `(?:mon(?:day)?|tue(?:s(?:day)?)?|wed(?:nesday)?|thu(?:rs(?:day)?)?|fri(?:day)?|sat(?:urday)?|sun(?:day)?)`
	timeOfDay = `\d{1,2}(?::\d{2})?\s*(?:am|pm|a\.m\.|p\.m\.)?`
	timeRange = `(?:` + timeOfDay + `\s*(?:-|–|—|to|until)\s*` + timeOfDay + `|closed)`
)

var (
	// "Mon-Fri 9am-5pm", "Saturday: 10-2", "Sun closed".
	dayHoursRe = regexp.MustCompile(
		`(?i)\b(` + day + `)s?(?:\s*(?:-|–|—|to|through|thru)\s*(` + day + `)s?)?\s*[:,]?\s*(` + timeRange + `)`)

	// "Open daily 9am-5pm", "every day 10-10", "7 days a week 11-11".
	dailyHoursRe = regexp.MustCompile(
		`(?i)\b(?:open\s+)?(?:daily|every\s*day|7\s*days(?:\s*a\s*week)?)\s*[:,]?\s*(` + timeRange + `)`)

	// "Closed Sundays", "closed on monday".
	closedDayRe = regexp.MustCompile(
		`(?i)\bclosed\s+(?:on\s+)?(` + day + `)s?\b`)

	// Promotional schedule sentences.
	specialRe = regexp.MustCompile(
		`(?i)\b(happy hour|drink special|daily special|weekly special|trivia night|live music)s?\b[^.!?\x1f]*`)

	specialScheduleRe = regexp.MustCompile(
		`(?i)\b(?:` + day + `s?(?:\s*(?:-|–|—|to|through)\s*` + day + `s?)?\s*)?` + timeOfDay + `\s*(?:-|–|—|to|until)\s*` + timeOfDay)

	innerSpaceRe = regexp.MustCompile(`\s+`)
)

var dayIndex = map[string]int{
	"mon": 0, "tue": 1, "wed": 2, "thu": 3, "fri": 4, "sat": 5, "sun": 6,
}

// canonicalDay maps any day token ("Mon", "monday", "Tues") to its index.
func canonicalDay(token string) (int, bool) {
	t := strings.ToLower(token)
	if len(t) > 3 {
		t = t[:3]
	}
	idx, ok := dayIndex[t]
	return idx, ok
}

// Hours extracts a weekday→hours map from normalized text. Later mentions of
// a day overwrite earlier ones, matching how venues list exceptions after
// their general schedule ("Mon-Sun 9-5. Closed Mondays.").
func Hours(text string) map[string]string {
	weekdays := model.Weekdays()
	hours := make(map[string]string)

	for _, m := range dailyHoursRe.FindAllStringSubmatch(text, -1) {
		for _, d := range weekdays {
			hours[d] = cleanHours(m[1])
		}
	}

	for _, m := range dayHoursRe.FindAllStringSubmatch(text, -1) {
		from, ok := canonicalDay(m[1])
		if !ok {
			continue
		}
		to := from
		if m[2] != "" {
			if idx, ok := canonicalDay(m[2]); ok {
				to = idx
			}
		}
		value := cleanHours(m[3])
		for i := from; ; i = (i + 1) % 7 {
			hours[weekdays[i]] = value
			if i == to {
				break
			}
		}
	}

	for _, m := range closedDayRe.FindAllStringSubmatch(text, -1) {
		if idx, ok := canonicalDay(m[1]); ok {
			hours[weekdays[idx]] = "closed"
		}
	}

	return hours
}

// Specials extracts promotional schedule entries from normalized text.
func Specials(text string) []model.Special {
	var specials []model.Special
	seen := make(map[string]bool)

	for _, m := range specialRe.FindAllString(text, -1) {
		desc := strings.TrimSpace(m)
		if desc == "" || seen[strings.ToLower(desc)] {
			continue
		}
		seen[strings.ToLower(desc)] = true

		sp := model.Special{Description: desc}
		if sched := specialScheduleRe.FindString(desc); sched != "" {
			sp.Schedule = strings.TrimSpace(sched)
		}
		specials = append(specials, sp)
	}
	return specials
}

// Facts runs all deterministic extractors over normalized text. The second
// return value reports whether anything at all was found; threshold policy
// belongs to the caller.
func Facts(text string) (model.VenueFacts, bool) {
	facts := model.VenueFacts{
		Hours:    Hours(text),
		Specials: Specials(text),
	}
	return facts, len(facts.Hours) > 0 || len(facts.Specials) > 0
}

func cleanHours(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	return innerSpaceRe.ReplaceAllString(s, " ")
}
