// Package extract evaluates declarative selectors against parsed HTML documents.
// It carries no site knowledge; profiles supply the selectors.
package extract

import (
	"bytes"
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
)

// Document is a parsed HTML tree that can be queried by XPath or CSS.
type Document struct {
	root *html.Node
	gq   *goquery.Document
}

// Parse builds a Document from raw HTML.
func Parse(r io.Reader) (*Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseBytes is a convenience wrapper around Parse.
func ParseBytes(body []byte) (*Document, error) {
	return Parse(bytes.NewReader(body))
}

func (d *Document) query() *goquery.Document {
	if d.gq == nil {
		d.gq = goquery.NewDocumentFromNode(d.root)
	}
	return d.gq
}

// Selector identifies node(s) in a document. Exactly one of XPath or CSS is set.
// For CSS selectors Attr picks an attribute instead of the element text.
type Selector struct {
	XPath string
	CSS   string
	Attr  string
}

// XPath returns an XPath selector.
func XPath(expr string) Selector { return Selector{XPath: expr} }

// CSS returns a CSS selector reading element text.
func CSS(expr string) Selector { return Selector{CSS: expr} }

// CSSAttr returns a CSS selector reading the named attribute.
func CSSAttr(expr, attr string) Selector { return Selector{CSS: expr, Attr: attr} }

func (s Selector) String() string {
	if s.XPath != "" {
		return s.XPath
	}
	if s.Attr != "" {
		return s.CSS + "@" + s.Attr
	}
	return s.CSS
}

// Extract returns every value the selector yields, in document order.
// A selector that matches nothing yields an empty slice, not an error.
func Extract(doc *Document, sel Selector) ([]string, error) {
	if doc == nil || doc.root == nil {
		return nil, fmt.Errorf("extract %q: nil document", sel)
	}
	switch {
	case sel.XPath != "":
		return extractXPath(doc, sel.XPath)
	case sel.CSS != "":
		return extractCSS(doc, sel), nil
	default:
		return nil, fmt.Errorf("extract: empty selector")
	}
}

// ExtractOne returns the first value the selector yields. Zero matches fail
// with crawler.ErrFieldMissing.
func ExtractOne(doc *Document, sel Selector) (string, error) {
	values, err := Extract(doc, sel)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", fmt.Errorf("%w: selector %q matched nothing", crawler.ErrFieldMissing, sel)
	}
	return values[0], nil
}

func extractXPath(doc *Document, expr string) ([]string, error) {
	nodes, err := htmlquery.QueryAll(doc.root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", expr, err)
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, htmlquery.InnerText(n))
	}
	return out, nil
}

func extractCSS(doc *Document, sel Selector) []string {
	var out []string
	doc.query().Find(sel.CSS).Each(func(_ int, s *goquery.Selection) {
		if sel.Attr == "" {
			out = append(out, s.Text())
			return
		}
		if v, ok := s.Attr(sel.Attr); ok {
			out = append(out, v)
		}
	})
	if out == nil {
		return []string{}
	}
	return out
}
