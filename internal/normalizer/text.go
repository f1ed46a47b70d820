package normalizer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	boilerplateSelector = "script, style, noscript, nav, header, footer, aside, form, iframe"
	blockSelector       = "p, div, br, li, tr, td, th, h1, h2, h3, h4, h5, h6, section, article, blockquote"
)

// StripMarkup removes HTML tags and entities and collapses whitespace.
func StripMarkup(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return CollapseWhitespace(raw)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return CollapseWhitespace(raw)
	}
	doc.Find("script, style, noscript").Remove()
	return textOf(doc.Selection)
}

// StripBoilerplate drops navigation chrome and returns the page title and body text.
func StripBoilerplate(raw string) (string, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", CollapseWhitespace(raw)
	}

	title := CollapseWhitespace(doc.Find("title").First().Text())
	if title == "" {
		title = CollapseWhitespace(doc.Find("h1").First().Text())
	}

	doc.Find("title, head").Remove()
	doc.Find(boilerplateSelector).Remove()

	root := doc.Find("main, article").First()
	if root.Length() == 0 || CollapseWhitespace(root.Text()) == "" {
		root = doc.Selection
	}
	return title, textOf(root)
}

// CollapseWhitespace trims and folds whitespace runs into single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func textOf(sel *goquery.Selection) string {
	// Block boundaries would otherwise glue adjacent words together.
	sel.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return CollapseWhitespace(sel.Text())
}
