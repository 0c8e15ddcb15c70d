// Package discover extracts candidate archive download URLs from fetched
// page content. Parsing is best-effort: malformed HTML yields fewer links,
// never an error.
package discover

import (
	"bytes"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// hrefPattern is a tolerant fallback for href attributes the HTML parser
// misses, e.g. links embedded in inline scripts on the data page.
var hrefPattern = regexp.MustCompile(`(?i)href=["']([^"']+\.zip)["']`)

// archiveExtensions lists the download formats the pipeline understands.
var archiveExtensions = map[string]bool{
	".zip": true,
}

// Discoverer scans page content for archive links.
type Discoverer struct {
	logger *zap.Logger
}

// New returns a Discoverer.
func New(logger *zap.Logger) *Discoverer {
	return &Discoverer{logger: logger}
}

// Discover returns the deduplicated, order-stable list of absolute archive
// URLs found in page, resolving relative links against base.
func (d *Discoverer) Discover(base string, page []byte) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		d.logger.Warn("invalid base url, skipping discovery", zap.String("base", base), zap.Error(err))
		return nil
	}

	var links []string
	seen := make(map[string]bool)
	add := func(raw string) {
		resolved, ok := resolveArchiveURL(baseURL, raw)
		if !ok || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err == nil {
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			if href, ok := sel.Attr("href"); ok {
				add(href)
			}
		})
	} else {
		d.logger.Warn("html parse failed, falling back to pattern scan", zap.Error(err))
	}

	// Pattern scan catches hrefs outside anchor tags.
	for _, m := range hrefPattern.FindAllSubmatch(page, -1) {
		add(string(m[1]))
	}

	d.logger.Info("archive links discovered", zap.Int("count", len(links)))
	return links
}

func resolveArchiveURL(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	if !archiveExtensions[strings.ToLower(path.Ext(resolved.Path))] {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}
