package nasa

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DateLayout is the YYYY-MM-DD format used by every NASA date parameter.
const DateLayout = "2006-01-02"

// apodIDPrefix prefixes Astronomy Picture of the Day identifiers.
const apodIDPrefix = "apod-"

// FirstAPOD is the date of the first Astronomy Picture of the Day.
var FirstAPOD = time.Date(1995, time.June, 16, 0, 0, 0, 0, time.UTC)

// APOD is one Astronomy Picture of the Day.
type APOD struct {
	ID             string `json:"id"`
	Date           string `json:"date"`
	Title          string `json:"title"`
	Explanation    string `json:"explanation"`
	URL            string `json:"url"`
	HDURL          string `json:"hdurl,omitempty"`
	MediaType      string `json:"media_type"`
	Copyright      string `json:"copyright,omitempty"`
	ThumbnailURL   string `json:"thumbnail_url,omitempty"`
	ServiceVersion string `json:"service_version,omitempty"`
}

// APOD fetches the picture for date (YYYY-MM-DD). An empty date means today.
func (c *Client) APOD(ctx context.Context, date string) (*APOD, error) {
	params := url.Values{"thumbs": {"true"}}
	if date != "" {
		if !ValidAPODDate(date, c.Today()) {
			return nil, fmt.Errorf("%w: APOD date %q must be YYYY-MM-DD between %s and today", ErrInvalidDate, date, FirstAPOD.Format(DateLayout))
		}
		params.Set("date", date)
	}

	var out APOD
	if err := c.getJSON(ctx, "apod", c.baseURL, "/planetary/apod", params, true, &out); err != nil {
		return nil, err
	}
	out.ID = APODID(out.Date)
	return &out, nil
}

// ValidAPODDate reports whether date is a well-formed YYYY-MM-DD between the
// first APOD and today inclusive.
func ValidAPODDate(date string, today time.Time) bool {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return false
	}
	y, m, dd := today.Date()
	end := time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
	return !d.Before(FirstAPOD) && !d.After(end)
}

// APODID returns the identifier the web client uses for the APOD of date.
func APODID(date string) string {
	return apodIDPrefix + date
}

// DateFromAPODID extracts and validates the date from an APOD identifier.
func DateFromAPODID(id string, today time.Time) (string, bool) {
	if !strings.HasPrefix(id, apodIDPrefix) {
		return "", false
	}
	date := strings.TrimPrefix(id, apodIDPrefix)
	if !ValidAPODDate(date, today) {
		return "", false
	}
	return date, true
}
