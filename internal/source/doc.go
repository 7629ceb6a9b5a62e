// Package source holds helpers shared by the origin adapters in its subpackages.
package source

import (
	"context"
	"fmt"
	"net/http"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

// Get fetches rawURL through fetcher with the given Accept header.
func Get(ctx context.Context, fetcher crawler.Fetcher, rawURL, accept string) ([]byte, error) {
	headers := http.Header{}
	if accept != "" {
		headers.Set("Accept", accept)
	}
	resp, err := fetcher.Fetch(ctx, crawler.FetchRequest{URL: rawURL, Headers: headers})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	return resp.Body, nil
}
