package nasa

import "context"

// Rover is a Mars rover as described by the Mars Rover Photos API.
type Rover struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	LandingDate string `json:"landing_date"`
	LaunchDate  string `json:"launch_date"`
	Status      string `json:"status"`
	MaxSol      int    `json:"max_sol"`
	MaxDate     string `json:"max_date"`
	TotalPhotos int    `json:"total_photos"`
	Cameras     []struct {
		Name     string `json:"name"`
		FullName string `json:"full_name"`
	} `json:"cameras,omitempty"`
}

// MarsRovers lists the rovers known to the Mars Rover Photos API.
func (c *Client) MarsRovers(ctx context.Context) ([]Rover, error) {
	var out struct {
		Rovers []Rover `json:"rovers"`
	}
	if err := c.getJSON(ctx, "rovers", c.baseURL, "/mars-photos/api/v1/rovers", nil, true, &out); err != nil {
		return nil, err
	}
	if out.Rovers == nil {
		return []Rover{}, nil
	}
	return out.Rovers, nil
}
