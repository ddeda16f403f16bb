package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/venuewatch/refresh-cli/internal/model"
)

// Prompt versions are recorded in result provenance so stored facts can be
// traced back to the exact instructions that produced them. Bump on any
// wording change that could shift output.
const (
	contentPromptVersion   = "content-v2"
	knowledgePromptVersion = "knowledge-v1"
)

// contentSystemText is the stable system prompt for content-grounded
// extraction. It is cached server-side across venues within a run.
const contentSystemText = `You are a data extraction assistant. You extract venue operating hours and recurring specials from raw page text. You answer ONLY from the provided text; if the text does not state a fact, you do not invent it. You always return a single valid JSON object and nothing else.`

const contentPromptTmpl = `Venue: %s

Page content:
%s

Extract the venue's weekly operating hours and any recurring specials (happy hours, trivia nights, recurring promotions) from the page content above.

Return a JSON object with exactly this shape:
{"found": <true if you extracted at least partial hours, false otherwise>, "hours": {"monday": "<hours or omit>", ..., "sunday": "<hours or omit>"}, "specials": [{"description": "<what>", "schedule": "<when>"}]}

Rules:
- Use lowercase weekday keys: monday through sunday.
- Use "closed" for days the venue is explicitly closed.
- Omit days the page does not mention.
- If the page content contains no hours information at all, return {"found": false}.`

// knowledgeSystemText is the system prompt for the knowledge fallback tier.
// Unlike the content tier it may draw on background knowledge, which is why
// its results carry the lowest confidence.
const knowledgeSystemText = `You are a local business information assistant. Given a list of venues, you report each venue's typical weekly operating hours and notable recurring specials from your background knowledge. If you are not confident about a venue, say so rather than guessing. You always return a single valid JSON array and nothing else.`

const knowledgePromptTmpl = `For each venue below, report its weekly operating hours and recurring specials if you know them.

Venues:
%s

Return a JSON array with one object per venue, using the venue's index:
[{"index": <venue index>, "found": <true if you know this venue's hours>, "hours": {"monday": "<hours>", ..., "sunday": "<hours>"}, "specials": [{"description": "<what>", "schedule": "<when>"}]}]

Rules:
- Use lowercase weekday keys: monday through sunday.
- Include every index exactly once.
- Set "found": false for venues you do not recognize or whose hours you are unsure of.`

// contentPrompt renders the tier 2 user message for one venue. Page texts are
// joined with separators so the model sees page boundaries.
func contentPrompt(venue model.Venue, pages []model.Page) string {
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n--- next page ---\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s", p.URL, p.Text)
	}
	return fmt.Sprintf(contentPromptTmpl, venue.Name, b.String())
}

// knowledgePrompt renders the tier 3 user message for a batch of venues.
// Indexes are batch-relative; the response is correlated back by index.
func knowledgePrompt(venues []model.Venue) string {
	var b strings.Builder
	for i, v := range venues {
		fmt.Fprintf(&b, "%d. %s", i, v.Name)
		if len(v.URLs) > 0 {
			fmt.Fprintf(&b, " (%s)", v.URLs[0])
		}
		b.WriteString("\n")
	}
	return fmt.Sprintf(knowledgePromptTmpl, b.String())
}

// factsPayload is the wire shape shared by both LLM tiers.
type factsPayload struct {
	Found    bool              `json:"found"`
	Hours    map[string]string `json:"hours"`
	Specials []model.Special   `json:"specials"`
}

// knowledgeAnswer is one entry of the tier 3 batch response.
type knowledgeAnswer struct {
	Index int `json:"index"`
	factsPayload
}

func (p factsPayload) facts() model.VenueFacts {
	hours := make(map[string]string, len(p.Hours))
	for _, day := range model.Weekdays() {
		if v := strings.TrimSpace(p.Hours[day]); v != "" {
			hours[day] = v
		}
	}
	return model.VenueFacts{Hours: hours, Specials: p.Specials}
}

// extractJSON pulls the first JSON value out of a model response, tolerating
// code fences and surrounding prose. Models occasionally preface the payload
// despite instructions.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			text = strings.TrimSpace(rest[:j])
		}
	}
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", eris.New("no JSON value in response")
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end < start {
		return "", eris.New("unterminated JSON value in response")
	}
	return text[start : end+1], nil
}

// parseContentResponse decodes a tier 2 response. A decode failure is not a
// verdict on the venue; callers escalate to the next tier instead of marking
// it unresolved.
func parseContentResponse(text string) (model.VenueFacts, bool, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return model.VenueFacts{}, false, eris.Wrap(err, "content response")
	}
	var payload factsPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return model.VenueFacts{}, false, eris.Wrap(err, "content response: decode")
	}
	if !payload.Found {
		return model.VenueFacts{}, false, nil
	}
	facts := payload.facts()
	if facts.HoursCovered() == 0 {
		// "found" with no usable hours is treated as not found.
		return model.VenueFacts{}, false, nil
	}
	return facts, true, nil
}

// parseKnowledgeResponse decodes a tier 3 batch response. Entries are
// returned as-is; index validation belongs to the caller, which knows the
// batch size.
func parseKnowledgeResponse(text string) ([]knowledgeAnswer, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, eris.Wrap(err, "knowledge response")
	}
	var answers []knowledgeAnswer
	if err := json.Unmarshal([]byte(raw), &answers); err != nil {
		return nil, eris.Wrap(err, "knowledge response: decode")
	}
	return answers, nil
}
