package nasa

import (
	"context"
	"fmt"
	"time"
)

// epicDateLayout is the timestamp format of EPIC image metadata.
const epicDateLayout = "2006-01-02 15:04:05"

// Vector3 is a J2000 position.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is a spacecraft attitude.
type Quaternion struct {
	Q0 float64 `json:"q0"`
	Q1 float64 `json:"q1"`
	Q2 float64 `json:"q2"`
	Q3 float64 `json:"q3"`
}

// EarthImage is one DSCOVR/EPIC natural-color Earth image. Image holds the
// full archive URL rather than the bare image name NASA returns.
type EarthImage struct {
	Identifier string `json:"identifier"`
	Caption    string `json:"caption"`
	Image      string `json:"image"`
	Version    string `json:"version"`
	Date       string `json:"date"`
	Coords     struct {
		Centroid struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"centroid_coordinates"`
		DSCOVR   Vector3    `json:"dscovr_j2000_position"`
		Lunar    Vector3    `json:"lunar_j2000_position"`
		Sun      Vector3    `json:"sun_j2000_position"`
		Attitude Quaternion `json:"attitude_quaternions"`
	} `json:"coords"`
}

// LatestEarthImages returns the most recent day of EPIC images.
func (c *Client) LatestEarthImages(ctx context.Context) ([]EarthImage, error) {
	var out []EarthImage
	if err := c.getJSON(ctx, "epic", c.baseURL, "/EPIC/api/natural", nil, true, &out); err != nil {
		return nil, err
	}
	return c.withArchiveURLs(out)
}

// EarthImagesByDate returns the EPIC images taken on day (UTC).
func (c *Client) EarthImagesByDate(ctx context.Context, day time.Time) ([]EarthImage, error) {
	date := day.UTC().Format(DateLayout)
	var out []EarthImage
	if err := c.getJSON(ctx, "epic", c.baseURL, "/EPIC/api/natural/date/"+date, nil, true, &out); err != nil {
		return nil, err
	}
	return c.withArchiveURLs(out)
}

func (c *Client) withArchiveURLs(images []EarthImage) ([]EarthImage, error) {
	if images == nil {
		images = []EarthImage{}
	}
	for i := range images {
		taken, err := time.Parse(epicDateLayout, images[i].Date)
		if err != nil {
			return nil, fmt.Errorf("parse EPIC image date %q: %w", images[i].Date, err)
		}
		images[i].Image = EPICArchiveURL(c.baseURL, taken, images[i].Image, c.apiKey)
	}
	return images, nil
}

// EPICArchiveURL builds the PNG archive URL of an EPIC image.
func EPICArchiveURL(baseURL string, taken time.Time, image, apiKey string) string {
	return fmt.Sprintf("%s/EPIC/archive/natural/%s/png/%s.png?api_key=%s",
		baseURL, taken.UTC().Format("2006/01/02"), image, apiKey)
}
