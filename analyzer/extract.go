package analyzer

import (
	"bytes"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/seo-optimizer/seo-inspector/fetcher"
)

var (
	titleSel  = cascadia.MustCompile("title")
	metaSel   = cascadia.MustCompile("meta")
	linkSel   = cascadia.MustCompile("link[rel]")
	anchorSel = cascadia.MustCompile("a[href]")
	imageSel  = cascadia.MustCompile("img")
	scriptSel = cascadia.MustCompile("script[type]")
	htmlSel   = cascadia.MustCompile("html[lang]")
	bodySel   = cascadia.MustCompile("body")

	headingSels = [3]cascadia.Selector{
		cascadia.MustCompile("h1"),
		cascadia.MustCompile("h2"),
		cascadia.MustCompile("h3"),
	}
)

// Elements whose text is never rendered.
var hiddenElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"iframe":   true,
}

// Elements that do not break words; every other element acts as a separator.
var inlineElements = map[string]bool{
	"a": true, "abbr": true, "b": true, "bdi": true, "bdo": true, "cite": true,
	"code": true, "data": true, "dfn": true, "em": true, "font": true, "i": true,
	"kbd": true, "label": true, "mark": true, "q": true, "s": true, "samp": true,
	"small": true, "span": true, "strong": true, "sub": true, "sup": true,
	"time": true, "u": true, "var": true,
}

// Extract builds the SEO fact-set for doc. Relative URLs resolve against
// baseOverride when it is set, else against finalURL; the same base decides
// which links are internal. An unusable base leaves relative links unresolved.
func Extract(doc *Document, finalURL, baseOverride string) *SEOFacts {
	facts := newSEOFacts()
	facts.Diagnostics = append(facts.Diagnostics, doc.Diagnostics...)

	raw := finalURL
	if strings.TrimSpace(baseOverride) != "" {
		raw = baseOverride
	}
	base, _ := fetcher.ValidateURL(raw)

	sel := doc.Selection()

	facts.Title = extractTitle(sel)
	extractMeta(sel, facts)
	facts.Canonical = extractCanonical(sel, base)
	facts.Lang = attrPtr(sel.FindMatcher(htmlSel).First(), "lang")

	facts.H1 = headingTexts(sel, headingSels[0])
	facts.H2 = headingTexts(sel, headingSels[1])
	facts.H3 = headingTexts(sel, headingSels[2])

	facts.WordCount = visibleWordCount(doc.root)
	facts.Links = extractLinks(sel, base)
	facts.Images = extractImages(sel, base)
	facts.Hreflang = extractHreflang(sel, base)
	facts.Schema, facts.SchemaTypes = extractSchema(sel)

	return facts
}

func extractTitle(sel *goquery.Selection) *string {
	var title *string
	sel.FindMatcher(titleSel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		// <title> inside inline SVG is not the page title.
		if s.Get(0).Namespace != "" {
			return true
		}
		t := strings.TrimSpace(s.Text())
		title = &t
		return false
	})
	return title
}

// extractMeta fills the name-keyed meta fields and the social maps in a single
// pass. Named fields keep the first match; social keys keep the last.
func extractMeta(sel *goquery.Selection, facts *SEOFacts) {
	named := map[string]**string{
		"description": &facts.MetaDescription,
		"robots":      &facts.MetaRobots,
		"viewport":    &facts.MetaViewport,
	}
	seen := map[string]bool{}

	sel.FindMatcher(metaSel).Each(func(_ int, s *goquery.Selection) {
		content, hasContent := s.Attr("content")

		if property, ok := s.Attr("property"); ok {
			if key, ok := cutPrefixFold(strings.TrimSpace(property), "og:"); ok && key != "" {
				facts.OpenGraph[key] = content
			}
		}

		name, ok := s.Attr("name")
		if !ok {
			return
		}
		name = strings.TrimSpace(name)
		if key, ok := cutPrefixFold(name, "twitter:"); ok && key != "" {
			facts.TwitterCard[key] = content
			return
		}

		lower := strings.ToLower(name)
		field, ok := named[lower]
		if !ok || seen[lower] {
			return
		}
		seen[lower] = true
		if hasContent {
			*field = &content
		}
	})
}

func extractCanonical(sel *goquery.Selection, base *url.URL) *string {
	var canonical *string
	sel.FindMatcher(linkSel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !hasRelToken(s, "canonical") {
			return true
		}
		if href, ok := s.Attr("href"); ok {
			if resolved, ok := resolveRef(base, href); ok {
				canonical = &resolved
			}
		}
		return false
	})
	return canonical
}

func headingTexts(sel *goquery.Selection, m cascadia.Selector) []string {
	texts := []string{}
	sel.FindMatcher(m).Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, collapseSpace(visibleText(s.Get(0))))
	})
	return texts
}

func extractLinks(sel *goquery.Selection, base *url.URL) Links {
	links := Links{Internal: []string{}, External: []string{}}
	sel.FindMatcher(anchorSel).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, ok := resolveLink(base, href)
		if !ok {
			return
		}
		if isInternal(base, u) {
			links.Internal = append(links.Internal, u.String())
		} else {
			links.External = append(links.External, u.String())
		}
	})
	return links
}

func extractImages(sel *goquery.Selection, base *url.URL) []Image {
	images := []Image{}
	sel.FindMatcher(imageSel).Each(func(_ int, s *goquery.Selection) {
		img := Image{
			Alt:     attrPtr(s, "alt"),
			Loading: attrPtr(s, "loading"),
		}
		if src, ok := s.Attr("src"); ok {
			// An empty src stays empty rather than resolving to the page itself.
			if strings.TrimSpace(src) == "" {
				src = ""
			} else if resolved, ok := resolveRef(base, src); ok {
				src = resolved
			}
			img.Src = &src
		}
		if w, ok := s.Attr("width"); ok {
			img.Width = parseDimension(w)
		}
		if h, ok := s.Attr("height"); ok {
			img.Height = parseDimension(h)
		}
		images = append(images, img)
	})
	return images
}

func extractHreflang(sel *goquery.Selection, base *url.URL) []Hreflang {
	alternates := []Hreflang{}
	sel.FindMatcher(linkSel).Each(func(_ int, s *goquery.Selection) {
		if !hasRelToken(s, "alternate") {
			return
		}
		lang, ok := s.Attr("hreflang")
		if !ok {
			return
		}
		href, _ := s.Attr("href")
		if strings.TrimSpace(href) == "" {
			return
		}
		resolved, ok := resolveRef(base, href)
		if !ok {
			return
		}
		alternates = append(alternates, Hreflang{Lang: strings.TrimSpace(lang), Href: resolved})
	})
	return alternates
}

// extractSchema returns every valid JSON-LD block, compacted, plus the
// @type values found anywhere inside them. Invalid blocks are skipped.
func extractSchema(sel *goquery.Selection) ([]json.RawMessage, []string) {
	blocks := []json.RawMessage{}
	types := []string{}
	seen := map[string]bool{}

	sel.FindMatcher(scriptSel).Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		mediaType, _, _ := strings.Cut(typ, ";")
		if !strings.EqualFold(strings.TrimSpace(mediaType), "application/ld+json") {
			return
		}

		body := []byte(unwrapScript(s.Text()))
		if !json.Valid(body) {
			return
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, body); err != nil {
			return
		}
		blocks = append(blocks, json.RawMessage(compact.Bytes()))

		var value any
		if err := json.Unmarshal(body, &value); err == nil {
			collectTypes(value, func(t string) {
				if !seen[t] {
					seen[t] = true
					types = append(types, t)
				}
			})
		}
	})
	return blocks, types
}

// collectTypes walks a decoded JSON-LD value depth-first. An object's own
// @type comes before its children, which are visited in key order.
func collectTypes(v any, add func(string)) {
	switch node := v.(type) {
	case map[string]any:
		switch t := node["@type"].(type) {
		case string:
			add(t)
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		}
		keys := make([]string, 0, len(node))
		for k := range node {
			if k != "@type" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectTypes(node[k], add)
		}
	case []any:
		for _, item := range node {
			collectTypes(item, add)
		}
	}
}

// unwrapScript strips the comment and CDATA wrappers some pages put around
// inline JSON.
func unwrapScript(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<!--")
	s = strings.TrimSuffix(s, "-->")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "//<![CDATA[")
	s = strings.TrimPrefix(s, "<![CDATA[")
	s = strings.TrimSuffix(s, "//]]>")
	s = strings.TrimSuffix(s, "]]>")
	return strings.TrimSpace(s)
}

// visibleWordCount counts whitespace-separated words in the rendered text of
// the body. Block-level boundaries separate words; inline ones do not.
func visibleWordCount(root *html.Node) int {
	start := root
	if bodies := bodySel.MatchAll(root); len(bodies) > 0 {
		start = bodies[0]
	}
	return len(strings.Fields(visibleText(start)))
}

// visibleText concatenates the rendered text under n, skipping hidden
// elements and separating block elements with spaces.
func visibleText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.CommentNode, html.DoctypeNode:
			return
		case html.ElementNode:
			if hiddenElements[n.Data] {
				return
			}
		}

		block := n.Type == html.ElementNode && !inlineElements[n.Data]
		if block {
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte(' ')
		}
	}
	walk(n)

	return b.String()
}

func hasRelToken(s *goquery.Selection, token string) bool {
	rel, _ := s.Attr("rel")
	for _, t := range strings.Fields(rel) {
		if strings.EqualFold(t, token) {
			return true
		}
	}
	return false
}

func attrPtr(s *goquery.Selection, name string) *string {
	if s.Length() == 0 {
		return nil
	}
	v, ok := s.Attr(name)
	if !ok {
		return nil
	}
	return &v
}

func parseDimension(v string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return s[len(prefix):], true
}
