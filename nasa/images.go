package nasa

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// SearchOptions narrows an image library search.
type SearchOptions struct {
	YearStart string
	YearEnd   string
	Page      int
	PageSize  int
}

// ImageItem is one flattened search hit.
type ImageItem struct {
	NasaID       string   `json:"nasa_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	DateCreated  string   `json:"date_created,omitempty"`
	Center       string   `json:"center,omitempty"`
	MediaType    string   `json:"media_type"`
	Keywords     []string `json:"keywords,omitempty"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	AssetURL     string   `json:"asset_url,omitempty"`
}

// SearchResult is a page of image library hits.
type SearchResult struct {
	TotalHits int         `json:"total_hits"`
	Items     []ImageItem `json:"items"`
	HasNext   bool        `json:"has_next"`
}

type searchResponse struct {
	Collection struct {
		Items []struct {
			Href string `json:"href"`
			Data []struct {
				NasaID      string   `json:"nasa_id"`
				Title       string   `json:"title"`
				Description string   `json:"description"`
				DateCreated string   `json:"date_created"`
				Center      string   `json:"center"`
				MediaType   string   `json:"media_type"`
				Keywords    []string `json:"keywords"`
			} `json:"data"`
			Links []struct {
				Href string `json:"href"`
				Rel  string `json:"rel"`
			} `json:"links"`
		} `json:"items"`
		Metadata struct {
			TotalHits int `json:"total_hits"`
		} `json:"metadata"`
		Links []struct {
			Rel string `json:"rel"`
		} `json:"links"`
	} `json:"collection"`
}

// SearchImages runs a free-text image search against the NASA Image and
// Video Library. The library takes no api_key.
func (c *Client) SearchImages(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}
	params := url.Values{"q": {query}, "media_type": {"image"}}
	if opts.YearStart != "" {
		params.Set("year_start", opts.YearStart)
	}
	if opts.YearEnd != "" {
		params.Set("year_end", opts.YearEnd)
	}
	if opts.Page > 0 {
		params.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(opts.PageSize))
	}

	var raw searchResponse
	if err := c.getJSON(ctx, "images", c.imagesBaseURL, "/search", params, false, &raw); err != nil {
		return nil, err
	}

	out := &SearchResult{
		TotalHits: raw.Collection.Metadata.TotalHits,
		Items:     make([]ImageItem, 0, len(raw.Collection.Items)),
	}
	for _, l := range raw.Collection.Links {
		if l.Rel == "next" {
			out.HasNext = true
		}
	}
	for _, it := range raw.Collection.Items {
		if len(it.Data) == 0 {
			continue
		}
		d := it.Data[0]
		item := ImageItem{
			NasaID:      d.NasaID,
			Title:       d.Title,
			Description: d.Description,
			DateCreated: d.DateCreated,
			Center:      d.Center,
			MediaType:   d.MediaType,
			Keywords:    d.Keywords,
			AssetURL:    it.Href,
		}
		if len(it.Links) > 0 {
			item.ThumbnailURL = it.Links[0].Href
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}
