package parser

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	htmlTagRe    = regexp.MustCompile(`(?i)<(?:/?(?:p|br|div|span|a|b|i|u|em|strong|ul|ol|li|table|tr|td|th|h[1-6]|img|font|section|article)\b[^>]*|!--)`)
	htmlEntityRe = regexp.MustCompile(`&(?:[a-zA-Z]{2,8}|#[0-9]{1,6}|#x[0-9a-fA-F]{1,6});`)
	lineBreakRe  = regexp.MustCompile(`(?i)<br\s*/?>|</(?:p|div|li|tr|h[1-6]|section|article|table|ul|ol)\s*>`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
)

// looksLikeHTML reports whether the body carries markup or entities
func looksLikeHTML(s string) bool {
	return htmlTagRe.MatchString(s) || htmlEntityRe.MatchString(s)
}

// htmlToText flattens an HTML fragment into plain text keeping line
// structure: <br> and block elements end a line
func htmlToText(s string) string {
	if !htmlTagRe.MatchString(s) {
		return html.UnescapeString(s)
	}

	// Line breaks are marked before parsing so they survive as text
	marked := lineBreakRe.ReplaceAllStringFunc(s, func(tag string) string {
		return tag + "\n"
	})
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(marked))
	if err != nil {
		return html.UnescapeString(s)
	}
	doc.Find("script, style").Remove()

	text := strings.ReplaceAll(doc.Text(), "\u00a0", " ")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(blankRunRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
