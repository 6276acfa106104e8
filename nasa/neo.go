package nasa

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"
)

// MaxFeedSpan is the widest date range the NeoWs feed accepts.
const MaxFeedSpan = 7 * 24 * time.Hour

// NearEarthObject is one asteroid as returned by NeoWs.
type NearEarthObject struct {
	ID                 string  `json:"id"`
	NeoReferenceID     string  `json:"neo_reference_id,omitempty"`
	Name               string  `json:"name"`
	NasaJPLURL         string  `json:"nasa_jpl_url"`
	AbsoluteMagnitudeH float64 `json:"absolute_magnitude_h"`
	EstimatedDiameter  struct {
		Kilometers struct {
			Min float64 `json:"estimated_diameter_min"`
			Max float64 `json:"estimated_diameter_max"`
		} `json:"kilometers"`
	} `json:"estimated_diameter"`
	PotentiallyHazardous bool            `json:"is_potentially_hazardous_asteroid"`
	CloseApproaches      []CloseApproach `json:"close_approach_data"`
	OrbitalData          *OrbitalData    `json:"orbital_data,omitempty"`

	// DangerLevel is filled in by the gateway; NeoWs does not send it.
	DangerLevel int `json:"danger_level"`
}

// CloseApproach is one close pass of a NearEarthObject. NeoWs encodes the
// numeric fields as strings.
type CloseApproach struct {
	Date             string `json:"close_approach_date"`
	DateFull         string `json:"close_approach_date_full"`
	EpochDate        int64  `json:"epoch_date_close_approach"`
	OrbitingBody     string `json:"orbiting_body"`
	RelativeVelocity struct {
		KilometersPerSecond string `json:"kilometers_per_second"`
		KilometersPerHour   string `json:"kilometers_per_hour"`
	} `json:"relative_velocity"`
	MissDistance struct {
		Astronomical string `json:"astronomical"`
		Lunar        string `json:"lunar"`
		Kilometers   string `json:"kilometers"`
	} `json:"miss_distance"`
}

// OrbitalData is present on single-object lookups.
type OrbitalData struct {
	OrbitClass struct {
		Type        string `json:"orbit_class_type"`
		Description string `json:"orbit_class_description"`
	} `json:"orbit_class"`
	OrbitDeterminationDate string `json:"orbit_determination_date"`
	FirstObservationDate   string `json:"first_observation_date"`
	LastObservationDate    string `json:"last_observation_date"`
	OrbitalPeriod          string `json:"orbital_period"`
	PerihelionDistance     string `json:"perihelion_distance"`
	AphelionDistance       string `json:"aphelion_distance"`
}

// NeoFeed lists near-Earth objects grouped by close-approach date.
type NeoFeed struct {
	ElementCount     int                          `json:"element_count"`
	NearEarthObjects map[string][]NearEarthObject `json:"near_earth_objects"`
}

// NeoFeed returns the objects with a close approach between start and end
// (YYYY-MM-DD, inclusive, at most seven days apart).
func (c *Client) NeoFeed(ctx context.Context, start, end string) (*NeoFeed, error) {
	if err := ValidateFeedRange(start, end); err != nil {
		return nil, err
	}
	params := url.Values{"start_date": {start}, "end_date": {end}}

	var out NeoFeed
	if err := c.getJSON(ctx, "neo", c.baseURL, "/neo/rest/v1/feed", params, true, &out); err != nil {
		return nil, err
	}
	for day, objs := range out.NearEarthObjects {
		for i := range objs {
			objs[i].DangerLevel = DangerLevel(&objs[i])
		}
		out.NearEarthObjects[day] = objs
	}
	return &out, nil
}

// NeoByID looks up one object by its NeoWs id.
func (c *Client) NeoByID(ctx context.Context, id string) (*NearEarthObject, error) {
	if id == "" {
		return nil, fmt.Errorf("asteroid id is required")
	}
	var out NearEarthObject
	if err := c.getJSON(ctx, "neo", c.baseURL, "/neo/rest/v1/neo/"+url.PathEscape(id), nil, true, &out); err != nil {
		return nil, err
	}
	out.DangerLevel = DangerLevel(&out)
	return &out, nil
}

// ValidateFeedRange checks a NeoWs feed range.
func ValidateFeedRange(start, end string) error {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return fmt.Errorf("%w: start_date %q", ErrInvalidDate, start)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return fmt.Errorf("%w: end_date %q", ErrInvalidDate, end)
	}
	if e.Before(s) {
		return fmt.Errorf("%w: end_date %s is before start_date %s", ErrInvalidDate, end, start)
	}
	if e.Sub(s) > MaxFeedSpan {
		return fmt.Errorf("%w: feed range may not exceed 7 days", ErrInvalidDate)
	}
	return nil
}

// DangerLevel scores an object from 0 to 5: up to 3 points for size, up to
// 3 for the closest miss distance, and 2 if NASA flags it as potentially
// hazardous.
func DangerLevel(neo *NearEarthObject) int {
	score := 0

	km := neo.EstimatedDiameter.Kilometers
	switch avg := (km.Min + km.Max) / 2; {
	case avg > 1:
		score += 3
	case avg > 0.5:
		score += 2
	case avg > 0.1:
		score++
	}

	closest := math.Inf(1)
	for _, a := range neo.CloseApproaches {
		d, err := strconv.ParseFloat(a.MissDistance.Astronomical, 64)
		if err == nil && d < closest {
			closest = d
		}
	}
	switch {
	case closest < 0.05:
		score += 3
	case closest < 0.1:
		score += 2
	case closest < 0.2:
		score++
	}

	if neo.PotentiallyHazardous {
		score += 2
	}
	if score > 5 {
		score = 5
	}
	return score
}
