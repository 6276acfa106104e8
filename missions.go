package nasagateway

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ferro-labs/nasa-gateway/internal/logging"
	"github.com/ferro-labs/nasa-gateway/missions"
	"github.com/ferro-labs/nasa-gateway/nasa"
)

// Mission image lookups ask for one recent hit per mission name.
var missionImageSearch = nasa.SearchOptions{YearStart: "2020", PageSize: 1}

// Missions returns the Mars rovers and the curated missions, newest launch
// first. Curated missions are enriched with an image and description from
// the image library when one is found. Upstream failures, including a spent
// budget, degrade the result instead of failing it: rovers are omitted and
// curated missions keep their bundled text.
func (g *Gateway) Missions(ctx context.Context) ([]missions.Mission, error) {
	curated, err := missions.Curated()
	if err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx)

	var (
		eg     errgroup.Group
		rovers []missions.Mission
	)
	eg.Go(func() error {
		rs, err := g.MarsRovers(ctx)
		if err != nil {
			log.Warn("mars rovers unavailable", "error", err)
			return nil
		}
		for _, r := range rs {
			rovers = append(rovers, missions.FromRover(r))
		}
		return nil
	})
	for i := range curated {
		m := &curated[i]
		eg.Go(func() error {
			img, err := g.missionImage(ctx, m.Name)
			if err != nil {
				log.Debug("mission image lookup failed", "mission", m.ID, "error", err)
				return nil
			}
			if img == nil {
				return nil
			}
			if img.ThumbnailURL != "" {
				m.ImageURL = img.ThumbnailURL
			}
			if img.Description != "" {
				m.Description = img.Description
			}
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return missions.Merge(rovers, curated), nil
}

// MissionByID returns one mission from Missions.
func (g *Gateway) MissionByID(ctx context.Context, id string) (missions.Mission, error) {
	all, err := g.Missions(ctx)
	if err != nil {
		return missions.Mission{}, err
	}
	m, ok := missions.Find(all, id)
	if !ok {
		return missions.Mission{}, fmt.Errorf("mission %q: %w", id, nasa.ErrNotFound)
	}
	return m, nil
}

func (g *Gateway) missionImage(ctx context.Context, name string) (*nasa.ImageItem, error) {
	res, err := governed(ctx, g, EndpointImages, "mission_images_"+name, func(ctx context.Context) (*nasa.SearchResult, error) {
		return g.client.SearchImages(ctx, name, missionImageSearch)
	})
	if err != nil {
		return nil, err
	}
	if len(res.Items) == 0 {
		return nil, nil
	}
	return &res.Items[0], nil
}
