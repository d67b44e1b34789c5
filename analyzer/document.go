package analyzer

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Document is a parsed, queryable page.
type Document struct {
	root *html.Node
	doc  *goquery.Document

	// Encoding is the name of the character encoding the bytes were decoded with.
	Encoding string
	// Diagnostics records recoverable problems met while decoding or parsing.
	Diagnostics []string
}

// ParseDocument decodes content and builds a document tree from it. It never
// fails: malformed markup is repaired by the HTML5 tree builder, undecodable
// bytes fall back to ISO-8859-1, and a tree the parser cannot build
// degrades to an empty document with a diagnostic.
//
// contentType is the Content-Type header of the response, if any.
func ParseDocument(content []byte, contentType string) *Document {
	d := &Document{}

	text, encoding, diag := decode(content, contentType)
	d.Encoding = encoding
	if diag != "" {
		d.Diagnostics = append(d.Diagnostics, diag)
	}

	root, err := html.Parse(bytes.NewReader(text))
	if err != nil {
		d.Diagnostics = append(d.Diagnostics, fmt.Sprintf("markup could not be parsed: %v", err))
		root = emptyTree()
	}

	d.root = root
	d.doc = goquery.NewDocumentFromNode(root)
	return d
}

// Selection exposes the document for goquery queries.
func (d *Document) Selection() *goquery.Selection {
	return d.doc.Selection
}

// decode returns UTF-8 bytes for content, the encoding used, and a diagnostic
// when a fallback was needed.
func decode(content []byte, contentType string) ([]byte, string, string) {
	enc, name, certain := charset.DetermineEncoding(content, contentType)

	// The sniffer only looks at the first 1024 bytes; a guess loses to a
	// body that is valid UTF-8 throughout.
	if !certain && name != "utf-8" && utf8.Valid(content) {
		name = "utf-8"
	}

	switch name {
	case "utf-8":
		content = bytes.TrimPrefix(content, utf8BOM)
		if utf8.Valid(content) {
			return content, name, ""
		}
		return latin1(content, "declared utf-8 but bytes are not valid utf-8")
	case "replacement":
		return latin1(content, "declared encoding is unsupported")
	}

	out, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return latin1(content, fmt.Sprintf("decoding as %s failed: %v", name, err))
	}
	return out, name, ""
}

func latin1(content []byte, reason string) ([]byte, string, string) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		// ISO-8859-1 maps every byte, so this only guards against a broken decoder.
		return bytes.ToValidUTF8(content, []byte("�")), "utf-8", reason
	}
	return out, "iso-8859-1", reason + "; decoded as iso-8859-1"
}

func emptyTree() *html.Node {
	root, err := html.Parse(bytes.NewReader(nil))
	if err != nil {
		return &html.Node{Type: html.DocumentNode}
	}
	return root
}
