// catalog-check performs a HEAD request against every image_url in the
// bundled mission catalog. Any URL that returns a 4xx or 5xx status, or fails
// to connect, is reported. The process exits with code 1 if any failures are
// found so CI can flag a stale catalog.
//
// Usage:
//
// go run ./scripts/catalog-check
// go run ./scripts/catalog-check -concurrency 4
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ferro-labs/nasa-gateway/missions"
)

const userAgent = "nasagw-catalog-check/1.0 (+https://github.com/ferro-labs/nasa-gateway)"

type result struct {
	mission string
	url     string
	status  int
	err     error
}

func main() {
	concurrency := flag.Int("concurrency", 10, "number of parallel HTTP requests")
	flag.Parse()

	curated, err := missions.Curated()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	fmt.Fprintf(os.Stderr, "Checking %d mission images (concurrency=%d)...\n", len(curated), *concurrency)
	results := check(context.Background(), client, curated, *concurrency)

	var failures []string
	ok := 0
	for _, r := range results {
		switch {
		case r.err != nil:
			failures = append(failures, fmt.Sprintf("  CONN ERR  %s %s\n            %v", r.mission, r.url, r.err))
		case r.status >= 400:
			failures = append(failures, fmt.Sprintf("  HTTP %-4d  %s %s", r.status, r.mission, r.url))
		default:
			ok++
		}
	}

	sort.Strings(failures)
	fmt.Fprintf(os.Stderr, "%d OK, %d failed\n\n", ok, len(failures))

	if len(failures) > 0 {
		fmt.Fprintln(os.Stderr, "Failed URLs:")
		for _, f := range failures {
			fmt.Fprintln(os.Stderr, f)
		}
		os.Exit(1)
	}
}

// check probes each mission image with at most limit requests in flight.
// Missions without an image are skipped.
func check(ctx context.Context, client *http.Client, all []missions.Mission, limit int) []result {
	var (
		mu      sync.Mutex
		results []result
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for _, m := range all {
		if m.ImageURL == "" {
			continue
		}
		g.Go(func() error {
			status, err := probe(ctx, client, m.ImageURL)
			mu.Lock()
			results = append(results, result{mission: m.ID, url: m.ImageURL, status: status, err: err})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// probe issues a HEAD request and retries with GET when HEAD fails outright.
func probe(ctx context.Context, client *http.Client, u string) (int, error) {
	status, err := do(ctx, client, http.MethodHead, u)
	if err == nil {
		return status, nil
	}
	if status, err2 := do(ctx, client, http.MethodGet, u); err2 == nil {
		return status, nil
	}
	return 0, err
}

func do(ctx context.Context, client *http.Client, method, u string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
