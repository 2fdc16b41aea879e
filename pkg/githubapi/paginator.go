package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
)

// DefaultPageCap and FirstCollectPageCap bound how deep a single cycle
// pages: 10 pages normally, 3 for a library's first-ever collection, to
// bound catch-up cost on newly-onboarded libraries.
const (
	DefaultPageCap      = 10
	FirstCollectPageCap = 3
	DefaultPerPage      = 100
)

var linkNextRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// PageFunc is invoked once per page of raw JSON array items. Returning
// false stops pagination early (used by stop-condition sources like
// "reach previously-seen SHA").
type PageFunc func(items []json.RawMessage) (more bool, err error)

// Paginate walks a GitHub list endpoint page by page, following the Link
// header's rel="next" URL, flattening each page's JSON array into items
// passed to fn. It halts after pageCap pages even if more are available.
// Only the first page sends query; every subsequent page uses the next URL
// verbatim, since it already encodes the caller's original parameters.
func (c *Client) Paginate(ctx context.Context, path string, query url.Values, pageCap int, fn PageFunc) error {
	if query == nil {
		query = url.Values{}
	}
	if query.Get("per_page") == "" {
		query.Set("per_page", fmt.Sprintf("%d", DefaultPerPage))
	}

	nextURL := c.baseURL + path + "?" + query.Encode()

	for page := 0; page < pageCap && nextURL != ""; page++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, nextURL, nil)
		if err != nil {
			return err
		}

		resp, err := c.doRequest(ctx, req)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 400 {
			_ = resp.Body.Close()
			return fmt.Errorf("githubapi: paginate %s: status %d", path, resp.StatusCode)
		}

		var items []json.RawMessage
		decodeErr := json.NewDecoder(resp.Body).Decode(&items)
		link := resp.Header.Get("Link")
		_ = resp.Body.Close()
		if decodeErr != nil {
			return fmt.Errorf("githubapi: decode page: %w", decodeErr)
		}

		more, err := fn(items)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}

		nextURL = parseNextLink(link)
	}
	return nil
}

// parseNextLink extracts the rel="next" URL from a Link header, or "" if
// there is no next page.
func parseNextLink(header string) string {
	m := linkNextRe.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return m[1]
}

// paginateTyped decodes each raw page into a slice of T before handing it
// to onPage, so the typed endpoint wrappers in endpoints.go don't each
// repeat JSON-array decoding.
func paginateTyped[T any](c *Client, ctx context.Context, path string, query url.Values, pageCap int, onPage func([]T) (bool, error)) error {
	return c.Paginate(ctx, path, query, pageCap, func(raw []json.RawMessage) (bool, error) {
		items := make([]T, len(raw))
		for i, r := range raw {
			if err := json.Unmarshal(r, &items[i]); err != nil {
				return false, fmt.Errorf("githubapi: decode item %d: %w", i, err)
			}
		}
		return onPage(items)
	})
}
