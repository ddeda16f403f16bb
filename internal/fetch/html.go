package fetch

import (
	"regexp"
	"strings"
)

var (
	blockTagRes = buildBlockTagRes()
	htmlTagRe   = regexp.MustCompile(`<[^>]+>`)
	spaceRe     = regexp.MustCompile(`[ \t]+`)
	blankRe     = regexp.MustCompile(`\n{3,}`)
)

func buildBlockTagRes() []*regexp.Regexp {
	tags := []string{"script", "style", "nav", "footer", "noscript"}
	res := make([]*regexp.Regexp, len(tags))
	for i, tag := range tags {
		res[i] = regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
	}
	return res
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

// HTMLToText strips scripts, chrome, and markup from an HTML document and
// returns whitespace-collapsed plaintext.
func HTMLToText(html string) string {
	for _, re := range blockTagRes {
		html = re.ReplaceAllString(html, "")
	}
	html = htmlTagRe.ReplaceAllString(html, " ")
	html = entityReplacer.Replace(html)
	html = spaceRe.ReplaceAllString(html, " ")
	html = blankRe.ReplaceAllString(html, "\n\n")
	return strings.TrimSpace(html)
}
