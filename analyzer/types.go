package analyzer

import "encoding/json"

// SEOFacts is the structured fact-set extracted from one document.
// Pointer fields are nil when the source element or attribute is absent,
// which keeps "missing" distinct from "present but empty".
type SEOFacts struct {
	Title           *string           `json:"title"`
	MetaDescription *string           `json:"meta_description"`
	Canonical       *string           `json:"canonical"`
	MetaRobots      *string           `json:"meta_robots"`
	MetaViewport    *string           `json:"meta_viewport"`
	Lang            *string           `json:"lang"`
	WordCount       int               `json:"word_count"`
	H1              []string          `json:"h1"`
	H2              []string          `json:"h2"`
	H3              []string          `json:"h3"`
	Links           Links             `json:"links"`
	Images          []Image           `json:"images"`
	OpenGraph       map[string]string `json:"open_graph"`
	TwitterCard     map[string]string `json:"twitter_card"`
	Schema          []json.RawMessage `json:"schema"`
	SchemaTypes     []string          `json:"schema_types"`
	Hreflang        []Hreflang        `json:"hreflang"`
	Diagnostics     []string          `json:"diagnostics,omitempty"`
}

// Links holds absolute http(s) link targets in document order.
type Links struct {
	Internal []string `json:"internal"`
	External []string `json:"external"`
}

// Image describes one <img> element.
type Image struct {
	Src     *string `json:"src"`
	Alt     *string `json:"alt"`
	Width   *int    `json:"width"`
	Height  *int    `json:"height"`
	Loading *string `json:"loading"`
}

// Hreflang is one language alternate declared with <link rel="alternate" hreflang>.
type Hreflang struct {
	Lang string `json:"lang"`
	Href string `json:"href"`
}

// Analysis is the result of analyzing a live URL.
type Analysis struct {
	URL           string    `json:"url"`
	StatusCode    int       `json:"status_code"`
	RedirectChain []string  `json:"redirect_chain"`
	SEO           *SEOFacts `json:"seo"`
}

func newSEOFacts() *SEOFacts {
	return &SEOFacts{
		H1:          []string{},
		H2:          []string{},
		H3:          []string{},
		Links:       Links{Internal: []string{}, External: []string{}},
		Images:      []Image{},
		OpenGraph:   map[string]string{},
		TwitterCard: map[string]string{},
		Schema:      []json.RawMessage{},
		SchemaTypes: []string{},
		Hreflang:    []Hreflang{},
	}
}
