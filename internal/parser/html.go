package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLParser converts HTML mail bodies to plain text so the code detector
// can run on them
type HTMLParser struct {
	whitespaceRegex *regexp.Regexp
	newlineRegex    *regexp.Regexp
	invisibleRegex  *regexp.Regexp
}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{
		whitespaceRegex: regexp.MustCompile(`[^\S\n]+`),
		newlineRegex:    regexp.MustCompile(`\n{3,}`),
		// Zero-width spaces and other invisible Unicode characters
		invisibleRegex: regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{2060}-\x{2064}]+`),
	}
}

// Parse converts HTML to clean plain text
func (p *HTMLParser) Parse(html string) (string, error) {
	if html == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link").Remove()

	// Keep block boundaries as line breaks
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := doc.Text()
	text = p.invisibleRegex.ReplaceAllString(text, "")
	text = p.whitespaceRegex.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	var cleanLines []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleanLines = append(cleanLines, line)
		}
	}
	text = strings.Join(cleanLines, "\n")
	text = p.newlineRegex.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text), nil
}
