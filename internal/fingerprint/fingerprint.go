// Package fingerprint computes stable content hashes for change detection.
// The hash is insensitive to incidental noise: embedded dates, loading
// placeholders, and whitespace run-length all normalize away, so a page
// that only re-rendered its "last updated" stamp does not count as changed.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/venuewatch/refresh-cli/internal/model"
)

// pageSeparator joins normalized page texts before hashing. Unit separator
// cannot appear in normalized text, so page boundaries stay unambiguous.
const pageSeparator = "\x1f"

var (
	// ISO-8601 dates and timestamps: 2026-08-27, 2026-08-27T14:03:00Z,
	// 2026-08-27 14:03:00+02:00.
	isoTimestampRe = regexp.MustCompile(
		`\d{4}-\d{2}-\d{2}([Tt ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?([Zz]|[+-]\d{2}:?\d{2})?)?`)

	// Calendar mentions: "August 27", "Aug. 27th, 2026", "27 August 2026".
	monthDayRe = regexp.MustCompile(
		`(?i)\b(?:(jan(uary)?|feb(ruary)?|mar(ch)?|apr(il)?|may|jun(e)?|jul(y)?|aug(ust)?|sep(t(ember)?)?|oct(ober)?|nov(ember)?|dec(ember)?)\.?\s+\d{1,2}(st|nd|rd|th)?(,?\s+\d{4})?|\d{1,2}(st|nd|rd|th)?\s+(jan(uary)?|feb(ruary)?|mar(ch)?|apr(il)?|may|jun(e)?|jul(y)?|aug(ust)?|sep(t(ember)?)?|oct(ober)?|nov(ember)?|dec(ember)?)\.?(,?\s+\d{4})?)\b`)

	// Numeric dates: 8/27/2026, 27.08.26.
	numericDateRe = regexp.MustCompile(`\b\d{1,2}[/.]\d{1,2}[/.]\d{2,4}\b`)

	whitespaceRe = regexp.MustCompile(`\s+`)
)

// loadingPlaceholders are transient render states that some venue sites serve
// to non-JS clients. Matched case-insensitively after NFC normalization.
var loadingPlaceholders = []string{
	"loading...",
	"loading…",
	"please wait",
	"content is loading",
	"javascript is required to view this page",
	"enable javascript to continue",
}

var placeholderRe = func() *regexp.Regexp {
	quoted := make([]string, len(loadingPlaceholders))
	for i, ph := range loadingPlaceholders {
		quoted[i] = regexp.QuoteMeta(ph)
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
}()

// Normalize prepares text for fingerprinting: NFC normalization, then
// stripping timestamps, calendar dates, and loading placeholders, then
// collapsing whitespace runs to a single space and trimming.
func Normalize(text string) string {
	s := norm.NFC.String(text)
	s = isoTimestampRe.ReplaceAllString(s, "")
	s = monthDayRe.ReplaceAllString(s, "")
	s = numericDateRe.ReplaceAllString(s, "")
	s = placeholderRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Fingerprint hashes a venue's pages into a 128-bit content digest. Pages
// are normalized individually and joined in the order given; identical
// normalized input always yields an identical digest. MD5 is deliberate:
// this guards against accidental collisions, not adversaries.
func Fingerprint(pages []model.Page) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = Normalize(p.Text)
	}
	sum := md5.Sum([]byte(strings.Join(parts, pageSeparator)))
	return hex.EncodeToString(sum[:])
}
