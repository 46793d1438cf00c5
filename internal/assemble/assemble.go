// Package assemble turns one fetched item page into a complete Record.
package assemble

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/movie-catalog-crawler/internal/extract"
	"github.com/JakeFAU/movie-catalog-crawler/internal/normalize"
)

// Assembler runs a Profile's fields against an item document.
type Assembler struct {
	profile Profile
}

// New validates the profile and returns an Assembler.
func New(profile Profile) (*Assembler, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &Assembler{profile: profile}, nil
}

// Profile returns the profile the assembler was built with.
func (a *Assembler) Profile() Profile {
	return a.profile
}

// Assemble extracts every declared field from doc. It returns either a complete
// record or a *crawler.FieldError for the first field that failed.
func (a *Assembler) Assemble(doc *extract.Document, sourceURL string) (crawler.Record, error) {
	id, err := ExternalID(sourceURL, a.profile.IDSegment)
	if err != nil {
		return crawler.Record{}, &crawler.FieldError{Field: FieldExternalID, Err: err}
	}
	rec := crawler.Record{ExternalID: id, SourceURL: sourceURL}
	for _, f := range a.profile.Fields {
		if err := applyField(doc, f, &rec); err != nil {
			return crawler.Record{}, &crawler.FieldError{Field: f.Name, Err: err}
		}
	}
	return rec, nil
}

func applyField(doc *extract.Document, f Field, rec *crawler.Record) error {
	if !f.List {
		raw, err := extract.ExtractOne(doc, f.Selector)
		if err != nil {
			return err
		}
		return f.one(rec, raw)
	}
	raw, err := extract.Extract(doc, f.Selector)
	if err != nil {
		return err
	}
	if f.Required && !anyNonEmpty(raw) {
		return fmt.Errorf("%w: selector %q matched no values", crawler.ErrFieldMissing, f.Selector)
	}
	return f.many(rec, raw)
}

func anyNonEmpty(values []string) bool {
	for _, v := range values {
		if normalize.TrimText(v) != "" {
			return true
		}
	}
	return false
}

// ExternalID returns the path segment at index segment of rawURL.
// For "https://www.imdb.com/title/tt0111161/" and segment 1 it returns "tt0111161".
func ExternalID(rawURL string, segment int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: source url %q: %v", crawler.ErrFormat, rawURL, err)
	}
	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if segment < 0 || segment >= len(parts) {
		return "", fmt.Errorf("%w: no path segment %d in %q", crawler.ErrFieldMissing, segment, rawURL)
	}
	return parts[segment], nil
}
