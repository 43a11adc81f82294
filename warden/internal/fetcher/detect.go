package fetcher

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// IsSufficient reports whether static HTML carries the page's content.
// Script-rendered shells (empty mount points, little visible text) are not
// sufficient: their banners only exist after scripts run.
func IsSufficient(html []byte) bool {
	if len(html) < 256 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return false
	}

	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	text := strings.Join(strings.Fields(body.Text()), "")
	textLen := utf8.RuneCountInString(text)

	if textLen < 200 || float64(len(text))/float64(len(html)) < 0.10 {
		return false
	}

	shell := false
	doc.Find("#root, #app, #__next").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() == 0 && strings.TrimSpace(s.Text()) == "" {
			shell = true
		}
	})
	if shell {
		return false
	}

	needsJS := false
	doc.Find("noscript").Each(func(_ int, s *goquery.Selection) {
		if strings.Contains(strings.ToLower(s.Text()), "enable javascript") {
			needsJS = true
		}
	})
	return !needsJS
}
