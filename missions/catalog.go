// Package missions provides the mission catalog served by the gateway: a
// curated list of current missions embedded in the binary, merged with the
// Mars rovers reported live by NASA.
package missions

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ferro-labs/nasa-gateway/nasa"
)

//go:embed catalog.json
var bundledCatalog []byte

// Type classifies a mission.
type Type string

// Mission types.
const (
	TypeRover     Type = "rover"
	TypeSatellite Type = "satellite"
	TypeProbe     Type = "probe"
	TypeTelescope Type = "telescope"
)

// Status is a mission's lifecycle state.
type Status string

// Mission statuses.
const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusPlanned   Status = "planned"
)

// Mission is one entry of the catalog.
type Mission struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Status      Status  `json:"status"`
	LaunchDate  string  `json:"launch_date,omitempty"`
	EndDate     string  `json:"end_date,omitempty"`
	Type        Type    `json:"type"`
	ImageURL    string  `json:"image_url"`
	Details     Details `json:"details"`
}

// Details holds the descriptive lists shown on a mission page.
type Details struct {
	Objectives   []string `json:"objectives"`
	Achievements []string `json:"achievements,omitempty"`
	Location     string   `json:"location,omitempty"`
	Technology   []string `json:"technology,omitempty"`
}

// Curated returns a fresh copy of the embedded mission list.
func Curated() ([]Mission, error) {
	var out []Mission
	if err := json.Unmarshal(bundledCatalog, &out); err != nil {
		return nil, fmt.Errorf("parse bundled mission catalog: %w", err)
	}
	for i, m := range out {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("bundled mission %d: %w", i, err)
		}
	}
	return out, nil
}

// Validate checks the fields every mission must carry.
func (m Mission) Validate() error {
	if m.ID == "" || m.Name == "" {
		return fmt.Errorf("mission id and name are required")
	}
	switch m.Type {
	case TypeRover, TypeSatellite, TypeProbe, TypeTelescope:
	default:
		return fmt.Errorf("mission %s: unknown type %q", m.ID, m.Type)
	}
	switch m.Status {
	case StatusActive, StatusCompleted, StatusPlanned:
	default:
		return fmt.Errorf("mission %s: unknown status %q", m.ID, m.Status)
	}
	return nil
}

// FromRover maps a Mars Rover Photos entry onto a Mission.
func FromRover(r nasa.Rover) Mission {
	id := strings.ToLower(r.Name)
	status := StatusCompleted
	verb := "explored"
	if r.Status == "active" {
		status = StatusActive
		verb = "is exploring"
	}
	return Mission{
		ID:          id,
		Name:        r.Name + " Rover",
		Description: fmt.Sprintf("Mars exploration rover that %s the surface of Mars.", verb),
		Status:      status,
		LaunchDate:  r.LaunchDate,
		EndDate:     r.MaxDate,
		Type:        TypeRover,
		ImageURL:    fmt.Sprintf("https://mars.nasa.gov/system/feature_items/images/%s_banner.jpg", id),
		Details: Details{
			Objectives: []string{
				"Explore the Martian surface",
				"Analyze rock composition",
				"Search for signs of ancient life",
			},
			Location: "Mars",
			Technology: []string{
				"High-resolution cameras",
				"Chemical analysis instruments",
				"Robotic arm",
			},
		},
	}
}

// Merge combines the given lists and sorts them by launch date, newest
// first. Missions without a parseable launch date go last, in input order.
func Merge(lists ...[]Mission) []Mission {
	var all []Mission
	for _, l := range lists {
		all = append(all, l...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		ti, okI := launch(all[i])
		tj, okJ := launch(all[j])
		switch {
		case !okI:
			return false
		case !okJ:
			return true
		default:
			return ti.After(tj)
		}
	})
	return all
}

// Find returns the mission with id.
func Find(all []Mission, id string) (Mission, bool) {
	for _, m := range all {
		if m.ID == id {
			return m, true
		}
	}
	return Mission{}, false
}

func launch(m Mission) (time.Time, bool) {
	if m.LaunchDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(nasa.DateLayout, m.LaunchDate)
	return t, err == nil
}
