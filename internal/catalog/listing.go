package catalog

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

// maxListingConcurrency bounds parallel folder page requests.
const maxListingConcurrency = 4

// ListAssets returns the files of every variable folder whose name ends in one
// of suffixes (case-insensitive), in catalog order. A failure on any folder
// fails the whole listing.
func (f *Fetcher) ListAssets(ctx context.Context, variables []domain.Variable, suffixes []string) ([]domain.RemoteRef, error) {
	pages := make([][]domain.RemoteRef, len(variables))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxListingConcurrency)
	for i, v := range variables {
		g.Go(func() error {
			refs, err := f.listFolder(ctx, v, suffixes)
			if err != nil {
				return err
			}
			pages[i] = refs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.RemoteRef
	for _, p := range pages {
		out = append(out, p...)
	}
	f.logger.Info("catalog listed", "folders", len(variables), "files", len(out), "suffixes", suffixes)
	return out, nil
}

func (f *Fetcher) listFolder(ctx context.Context, v domain.Variable, suffixes []string) ([]domain.RemoteRef, error) {
	location := f.baseURL + v.Folder + "/"
	resp, err := f.get(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrListing, v.Folder, err)
	}
	defer resp.Body.Close()

	hrefs, err := parseHrefs(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrListing, location, err)
	}

	var refs []domain.RemoteRef
	for _, href := range hrefs {
		if hasSuffix(href, suffixes) {
			refs = append(refs, domain.RemoteRef{Variable: v.Folder, URL: location + href})
		}
	}
	return refs, nil
}

// parseHrefs collects the href attribute of every anchor in an HTML page.
func parseHrefs(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var hrefs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && attr.Val != "" {
					hrefs = append(hrefs, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return hrefs, nil
}

func hasSuffix(name string, suffixes []string) bool {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}
