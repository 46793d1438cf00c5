// Package archive writes raw item pages to a blob store under content-addressed names.
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
)

const contentType = "text/html; charset=utf-8"

// Archiver stores page bodies as <prefix>/<yyyy-mm-dd>/<sha256>.html.
type Archiver struct {
	blobs  crawler.BlobStore
	hasher crawler.Hasher
	clock  crawler.Clock
	prefix string
}

// New builds an Archiver. A nil blob store yields a nil Archiver, which archives nothing.
func New(blobs crawler.BlobStore, hasher crawler.Hasher, clock crawler.Clock, prefix string) *Archiver {
	if blobs == nil {
		return nil
	}
	return &Archiver{
		blobs:  blobs,
		hasher: hasher,
		clock:  clock,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Archive writes body and returns the object URI. Identical bodies on the same
// day map to the same object.
func (a *Archiver) Archive(ctx context.Context, body []byte) (string, error) {
	if a == nil {
		return "", nil
	}
	digest, err := a.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash page: %w", err)
	}
	name := path.Join(a.prefix, a.clock.Now().UTC().Format("2006-01-02"), digest+".html")
	uri, err := a.blobs.PutObject(ctx, name, contentType, body)
	if err != nil {
		return "", fmt.Errorf("archive page %s: %w", name, err)
	}
	return uri, nil
}
