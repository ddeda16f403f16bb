package fingerprint

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/venuewatch/refresh-cli/internal/model"
)

func TestNormalize_StripsISOTimestamps(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"date only", "Updated 2026-08-27 hours below", "Updated hours below"},
		{"full timestamp", "As of 2026-08-27T14:03:00Z we open at 9", "As of we open at 9"},
		{"with offset", "Cached 2026-08-27 14:03:00+02:00 end", "Cached end"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_StripsCalendarMentions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"month day", "Closed August 27 for maintenance", "Closed for maintenance"},
		{"abbreviated", "Special ends Aug. 27th, 2026 at midnight", "Special ends at midnight"},
		{"day month", "Reopening 3 September 2026 soon", "Reopening soon"},
		{"numeric", "Menu printed 8/27/2026 nightly", "Menu printed nightly"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_StripsLoadingPlaceholders(t *testing.T) {
	got := Normalize("Our hours Loading... Mon 9-5")
	assert.Equal(t, "Our hours Mon 9-5", got)

	got = Normalize("PLEASE WAIT while we fetch specials")
	assert.Equal(t, "while we fetch specials", got)
}

func TestNormalize_PlaceholderAfterMultibyteText(t *testing.T) {
	// Runes whose lowercase form has a different byte length must not shift
	// the placeholder match position: İ (U+0130) lowers to a shorter form,
	// Ⱥ (U+023A) to a longer one.
	got := Normalize("İstanbul Kebab please wait Mon 9-5")
	assert.Equal(t, "İstanbul Kebab Mon 9-5", got)
	assert.True(t, utf8.ValidString(got))

	got = Normalize("Ⱥ bar please wait specials")
	assert.Equal(t, "Ⱥ bar specials", got)
	assert.True(t, utf8.ValidString(got))
}

func TestNormalize_CollapsesWhitespace(t *testing.T) {
	got := Normalize("  Mon\t9-5\n\nTue   10-6  ")
	assert.Equal(t, "Mon 9-5 Tue 10-6", got)
}

func TestFingerprint_Deterministic(t *testing.T) {
	pages := []model.Page{
		{URL: "https://a.example/hours", Text: "Mon 9-5"},
		{URL: "https://a.example/specials", Text: "Happy hour 4-6"},
	}
	assert.Equal(t, Fingerprint(pages), Fingerprint(pages))
}

func TestFingerprint_IgnoresCaptureMetadata(t *testing.T) {
	a := []model.Page{{URL: "https://a.example", Text: "Mon 9-5", CapturedAt: time.Now()}}
	b := []model.Page{{URL: "https://b.example", Text: "Mon 9-5", CapturedAt: time.Now().Add(24 * time.Hour)}}

	// Only page text participates; URL and capture time do not.
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_EmbeddedDateOnlyChange(t *testing.T) {
	yesterday := []model.Page{{Text: "Last updated 2026-08-26. Mon 9-5, Tue 10-6."}}
	today := []model.Page{{Text: "Last updated 2026-08-27. Mon 9-5, Tue 10-6."}}

	assert.Equal(t, Fingerprint(yesterday), Fingerprint(today))
}

func TestFingerprint_RealChangeDetected(t *testing.T) {
	before := []model.Page{{Text: "Mon 9-5, Tue 10-6."}}
	after := []model.Page{{Text: "Mon 9-8, Tue 10-6."}}

	assert.NotEqual(t, Fingerprint(before), Fingerprint(after))
}

func TestFingerprint_PageOrderMatters(t *testing.T) {
	ab := []model.Page{{Text: "alpha"}, {Text: "beta"}}
	ba := []model.Page{{Text: "beta"}, {Text: "alpha"}}

	assert.NotEqual(t, Fingerprint(ab), Fingerprint(ba))
}

func TestFingerprint_PageBoundaryUnambiguous(t *testing.T) {
	joined := []model.Page{{Text: "alpha beta"}}
	split := []model.Page{{Text: "alpha"}, {Text: "beta"}}

	assert.NotEqual(t, Fingerprint(joined), Fingerprint(split))
}

func TestFingerprint_Empty(t *testing.T) {
	assert.Equal(t, Fingerprint(nil), Fingerprint([]model.Page{}))
}
