package assemble

import (
	"fmt"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/movie-catalog-crawler/internal/extract"
	"github.com/JakeFAU/movie-catalog-crawler/internal/normalize"
)

// Field names, used in FieldError and logs.
const (
	FieldExternalID     = "external_id"
	FieldPoster         = "poster_url"
	FieldTitle          = "title"
	FieldProductionYear = "production_year"
	FieldDuration       = "duration_minutes"
	FieldGenres         = "genres"
	FieldReleaseDate    = "release_date"
	FieldRating         = "rating"
	FieldRatingCount    = "rating_count"
	FieldDescription    = "description"
	FieldDirector       = "director"
	FieldWriters        = "writers"
	FieldCast           = "cast"
)

// Field pairs a selector with the normalizer that stores its value on a Record.
// Single-valued fields read the first match; list fields read every match.
type Field struct {
	Name     string
	Selector extract.Selector
	List     bool
	// Required list fields must yield at least one non-empty value.
	Required bool
	one      func(rec *crawler.Record, raw string) error
	many     func(rec *crawler.Record, raw []string) error
}

// Profile is the site-specific knowledge needed to crawl one source.
type Profile struct {
	Name string
	// LinkSelector finds item links on a listing page.
	LinkSelector extract.Selector
	// IDSegment is the index of the item identifier among the URL path segments.
	IDSegment int
	// Fields are evaluated in order; the first failure aborts assembly.
	Fields []Field
}

// Validate checks that the profile is usable.
func (p Profile) Validate() error {
	if len(p.Fields) == 0 {
		return fmt.Errorf("profile %q declares no fields", p.Name)
	}
	if p.IDSegment < 0 {
		return fmt.Errorf("profile %q: id segment must be >= 0", p.Name)
	}
	for _, f := range p.Fields {
		if f.Name == "" {
			return fmt.Errorf("profile %q: field without name", p.Name)
		}
		if f.Selector.XPath == "" && f.Selector.CSS == "" {
			return fmt.Errorf("profile %q: field %s has no selector", p.Name, f.Name)
		}
		if (f.List && f.many == nil) || (!f.List && f.one == nil) {
			return fmt.Errorf("profile %q: field %s has no normalizer", p.Name, f.Name)
		}
	}
	return nil
}

// IMDbProfile returns the selectors for IMDb title pages and chart listings.
// Go's HTML parser inserts tbody elements, so table paths use descendant steps.
func IMDbProfile() Profile {
	return Profile{
		Name:         "imdb",
		LinkSelector: extract.XPath(`//tbody[@class="lister-list"]/tr/td[@class="titleColumn"]/a/@href`),
		IDSegment:    1,
		Fields: []Field{
			textField(FieldPoster, extract.XPath(`//div[@class="image"]/a/img[@itemprop="image"]/@src`), setPoster),
			textField(FieldTitle, extract.XPath(`//h1[@class="header"]/span[@itemprop="name"]/text()`), setTitle),
			textField(FieldProductionYear, extract.XPath(`//h1[@class="header"]/span/a/text()`), setProductionYear),
			textField(FieldDuration, extract.XPath(`//time[@itemprop="duration"]/text()`), setDuration),
			listField(FieldGenres, extract.XPath(`//span[@itemprop="genre"]/text()`), true, setGenres),
			textField(FieldReleaseDate, extract.XPath(`//div[@class="infobar"]/span[@class="nobr"]/a/text()`), setReleaseDate),
			textField(FieldRating, extract.XPath(`//span[@itemprop="ratingValue"]/text()`), setRating),
			textField(FieldRatingCount, extract.XPath(`//span[@itemprop="ratingCount"]/text()`), setRatingCount),
			textField(FieldDescription, extract.XPath(`//td[@id="overview-top"]/p[@itemprop="description"]/text()`), setDescription),
			listField(FieldDirector, extract.XPath(`//div[@itemprop="director"]/a/span[@itemprop="name"]/text()`), false, setDirector),
			listField(FieldWriters, extract.XPath(`//div[@itemprop="creator"]/a/span[@itemprop="name"]/text()`), false, setWriters),
			listField(FieldCast, extract.XPath(`//table[@class="cast_list"]//td[@itemprop="actor"]//text()`), false, setCast),
		},
	}
}

func textField(name string, sel extract.Selector, fn func(*crawler.Record, string) error) Field {
	return Field{Name: name, Selector: sel, Required: true, one: fn}
}

func listField(name string, sel extract.Selector, required bool, fn func(*crawler.Record, []string) error) Field {
	return Field{Name: name, Selector: sel, List: true, Required: required, many: fn}
}

func setPoster(rec *crawler.Record, raw string) error {
	rec.PosterURL = normalize.TrimText(raw)
	return requireText(rec.PosterURL)
}

func setTitle(rec *crawler.Record, raw string) error {
	rec.Title = normalize.TrimText(raw)
	return requireText(rec.Title)
}

func setDescription(rec *crawler.Record, raw string) error {
	rec.Description = normalize.TrimText(raw)
	return requireText(rec.Description)
}

func setProductionYear(rec *crawler.Record, raw string) error {
	year, err := normalize.ParseYear(raw)
	if err != nil {
		return err
	}
	rec.ProductionYear = year
	return nil
}

func setDuration(rec *crawler.Record, raw string) error {
	minutes, err := normalize.ParseDuration(raw)
	if err != nil {
		return err
	}
	rec.DurationMinutes = minutes
	return nil
}

func setReleaseDate(rec *crawler.Record, raw string) error {
	date, err := normalize.ParseReleaseDate(raw)
	if err != nil {
		return err
	}
	rec.ReleaseDate = date
	return nil
}

func setRating(rec *crawler.Record, raw string) error {
	rating, err := normalize.ParseFloat(raw)
	if err != nil {
		return err
	}
	if rating < 0 || rating > 10 {
		return fmt.Errorf("%w: rating %v outside [0, 10]", crawler.ErrFormat, rating)
	}
	rec.Rating = rating
	return nil
}

func setRatingCount(rec *crawler.Record, raw string) error {
	count, err := normalize.ParseInt(raw)
	if err != nil {
		return err
	}
	if count < 0 {
		return fmt.Errorf("%w: negative rating count %d", crawler.ErrFormat, count)
	}
	rec.RatingCount = count
	return nil
}

func setGenres(rec *crawler.Record, raw []string) error {
	rec.Genres = normalize.CompactAll(raw)
	if len(rec.Genres) == 0 {
		return fmt.Errorf("%w: no genre left after trimming", crawler.ErrFieldMissing)
	}
	return nil
}

func setDirector(rec *crawler.Record, raw []string) error {
	rec.Director = normalize.TrimAll(raw)
	return nil
}

func setWriters(rec *crawler.Record, raw []string) error {
	rec.Writers = normalize.TrimAll(raw)
	return nil
}

func setCast(rec *crawler.Record, raw []string) error {
	rec.Cast = normalize.CompactAll(raw)
	return nil
}

func requireText(v string) error {
	if v == "" {
		return fmt.Errorf("%w: empty after trimming", crawler.ErrFieldMissing)
	}
	return nil
}
