package stats

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"example.com/statsimpact/internal/auth"
	"example.com/statsimpact/internal/domain"
	"example.com/statsimpact/internal/filter"
)

// Dashboard bundles the five aggregates with the lists the presentation layer
// needs to render the filter form.
type Dashboard struct {
	Filter         filter.Filter        `json:"filter"`
	Volume         *VolumeStats         `json:"volume"`
	Frequency      *FrequencyStats      `json:"frequence"`
	Transversality *TransversalityStats `json:"transversalite"`
	Demography     *DemographyStats     `json:"demographie"`
	Occupancy      *OccupancyStats      `json:"occupation"`
	Sectors        []string             `json:"secteurs"`
	Workshops      []domain.Workshop    `json:"ateliers"`
	Quartiers      []domain.Quartier    `json:"quartiers"`
}

// Dashboard evaluates every aggregate for f concurrently. The computations
// share no state; each writes its own field. The sector list is only loaded
// for identities allowed to choose a sector.
func (e *Engine) Dashboard(ctx context.Context, claims *auth.Claims, f filter.Filter) (*Dashboard, error) {
	if !claims.CanViewStats() {
		return nil, domain.ErrStatsForbidden
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	out := &Dashboard{Filter: f, Sectors: []string{}}

	g.Go(func() error {
		res, err := e.Volume(ctx, f)
		if err != nil {
			return fmt.Errorf("volume: %w", err)
		}
		out.Volume = res
		return nil
	})
	g.Go(func() error {
		res, err := e.Frequency(ctx, f)
		if err != nil {
			return fmt.Errorf("frequency: %w", err)
		}
		out.Frequency = res
		return nil
	})
	g.Go(func() error {
		res, err := e.Transversality(ctx, f)
		if err != nil {
			return fmt.Errorf("transversality: %w", err)
		}
		out.Transversality = res
		return nil
	})
	g.Go(func() error {
		res, err := e.Demography(ctx, f)
		if err != nil {
			return fmt.Errorf("demography: %w", err)
		}
		out.Demography = res
		return nil
	})
	g.Go(func() error {
		res, err := e.Occupancy(ctx, f)
		if err != nil {
			return fmt.Errorf("occupancy: %w", err)
		}
		out.Occupancy = res
		return nil
	})

	if claims.CanListSectors() {
		g.Go(func() error {
			sectors, err := e.repo.ListSectors(ctx)
			if err != nil {
				return fmt.Errorf("list sectors: %w", err)
			}
			out.Sectors = sectors
			return nil
		})
	}
	g.Go(func() error {
		workshops, err := e.repo.ListWorkshops(ctx, f.Secteur)
		if err != nil {
			return fmt.Errorf("list workshops: %w", err)
		}
		out.Workshops = workshops
		return nil
	})
	g.Go(func() error {
		quartiers, err := e.repo.ListQuartiers(ctx)
		if err != nil {
			return fmt.Errorf("list quartiers: %w", err)
		}
		out.Quartiers = quartiers
		return nil
	})

	if err := g.Wait(); err != nil {
		e.logger.ErrorContext(ctx, "dashboard evaluation failed", "secteur", f.Secteur, "error", err)
		return nil, err
	}
	return out, nil
}
