package stats

import (
	"context"
	"sort"
	"time"

	"example.com/statsimpact/internal/filter"
)

// SectorPair counts participants who attended both sectors.
type SectorPair struct {
	SectorA      string `json:"secteur_a"`
	SectorB      string `json:"secteur_b"`
	Participants int    `json:"participants"`
}

// SectorCount counts participants who attended a sector.
type SectorCount struct {
	Secteur      string `json:"secteur"`
	Participants int    `json:"participants"`
}

// TransversalityStats is the cross-sector participation aggregate.
type TransversalityStats struct {
	Filter            filter.Filter `json:"filter"`
	TotalParticipants int           `json:"total_participants"`
	MonoSector        int           `json:"mono_secteur"`
	MultiSector       int           `json:"multi_secteur"`
	Rate              float64       `json:"taux_transversalite"`
	Pairs             []SectorPair  `json:"paires"`
	BySector          []SectorCount `json:"par_secteur"`
}

// Transversality measures how many participants attend activities in more than one sector.
// A participant attending k sectors appears in each of the k*(k-1)/2 pairs.
func (e *Engine) Transversality(ctx context.Context, f filter.Filter) (*TransversalityStats, error) {
	defer observe("transversality", time.Now())

	s, err := e.loadScope(ctx, f)
	if err != nil {
		return nil, err
	}

	sectors := make(map[int64]map[string]struct{})
	for _, ev := range s.events {
		set, ok := sectors[ev.ParticipantID]
		if !ok {
			set = make(map[string]struct{})
			sectors[ev.ParticipantID] = set
		}
		set[sectorLabel(s.byID[ev.ActivityID].Secteur)] = struct{}{}
	}

	type pairKey struct{ a, b string }
	pairs := make(map[pairKey]int)
	perSector := make(map[string]int)
	out := &TransversalityStats{Filter: f, TotalParticipants: len(sectors)}

	for _, set := range sectors {
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
			perSector[name]++
		}
		if len(names) == 1 {
			out.MonoSector++
			continue
		}
		out.MultiSector++
		sort.Strings(names)
		for i := 0; i < len(names); i++ {
			for j := i + 1; j < len(names); j++ {
				pairs[pairKey{names[i], names[j]}]++
			}
		}
	}

	out.Rate = ratio(out.MultiSector, out.TotalParticipants)
	out.Pairs = make([]SectorPair, 0, len(pairs))
	for k, n := range pairs {
		out.Pairs = append(out.Pairs, SectorPair{SectorA: k.a, SectorB: k.b, Participants: n})
	}
	sort.Slice(out.Pairs, func(i, j int) bool {
		if out.Pairs[i].Participants != out.Pairs[j].Participants {
			return out.Pairs[i].Participants > out.Pairs[j].Participants
		}
		if out.Pairs[i].SectorA != out.Pairs[j].SectorA {
			return out.Pairs[i].SectorA < out.Pairs[j].SectorA
		}
		return out.Pairs[i].SectorB < out.Pairs[j].SectorB
	})
	out.BySector = make([]SectorCount, 0, len(perSector))
	for name, n := range perSector {
		out.BySector = append(out.BySector, SectorCount{Secteur: name, Participants: n})
	}
	sort.Slice(out.BySector, func(i, j int) bool { return out.BySector[i].Secteur < out.BySector[j].Secteur })
	return out, nil
}
