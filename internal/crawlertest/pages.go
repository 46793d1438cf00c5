// Package crawlertest builds IMDb-shaped HTML pages for tests.
package crawlertest

import (
	"fmt"
	"strings"
)

// Title describes one fake title page. An empty Rating leaves the rating element out.
type Title struct {
	ID     string
	Name   string
	Year   int
	Rating string
}

// TitlePage renders a title page the IMDb profile can assemble.
func TitlePage(t Title) string {
	rating := ""
	if t.Rating != "" {
		rating = fmt.Sprintf(`<span itemprop="ratingValue">%s</span>`, t.Rating)
	}
	return fmt.Sprintf(`<html><body>
<div class="image"><a href="/media/%[1]s"><img itemprop="image" src="https://img.example/%[1]s.jpg"/></a></div>
<table><tr><td id="overview-top">
<h1 class="header"><span itemprop="name">%[2]s</span> <span class="nobr">(<a href="/year/%[3]d/">%[3]d</a>)</span></h1>
<div class="infobar"><time itemprop="duration">120 min</time> <span itemprop="genre">Drama</span>
<span class="nobr"><a href="/releaseinfo">1 January %[3]d</a></span></div>
<div class="star-box">%[4]s<span itemprop="ratingCount">1,234</span></div>
<p itemprop="description">About %[2]s.</p>
<div itemprop="director"><a href="/name/nm1/"><span itemprop="name">Some Director</span></a></div>
</td></tr></table>
</body></html>`, t.ID, t.Name, t.Year, rating)
}

// ChartPage renders a listing whose title column links to the given paths.
func ChartPage(paths ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><table class="chart"><tbody class="lister-list">`)
	for _, p := range paths {
		fmt.Fprintf(&b, `<tr><td class="titleColumn"><a href="%s">link</a></td></tr>`, p)
	}
	b.WriteString(`</tbody></table></body></html>`)
	return b.String()
}
