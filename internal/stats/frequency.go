package stats

import (
	"context"
	"sort"
	"time"

	"example.com/statsimpact/internal/filter"
)

// FrequencyBucket reads "Participants people attended exactly Activities activities".
type FrequencyBucket struct {
	Activities   int `json:"activites"`
	Participants int `json:"participants"`
}

// ParticipantFrequency is one roster line of the frequency aggregate.
type ParticipantFrequency struct {
	ID         int64  `json:"id"`
	Nom        string `json:"nom"`
	Prenom     string `json:"prenom"`
	Activities int    `json:"activites"`
}

// FrequencyStats is the participation frequency aggregate.
type FrequencyStats struct {
	Filter            filter.Filter          `json:"filter"`
	TotalParticipants int                    `json:"total_participants"`
	TotalAttendances  int                    `json:"total_presences"`
	Average           float64                `json:"moyenne"`
	Histogram         []FrequencyBucket      `json:"distribution"`
	Participants      []ParticipantFrequency `json:"participants"`
}

// Frequency counts, for each participant in scope, the distinct activities attended.
func (e *Engine) Frequency(ctx context.Context, f filter.Filter) (*FrequencyStats, error) {
	defer observe("frequency", time.Now())

	s, err := e.loadScope(ctx, f)
	if err != nil {
		return nil, err
	}

	counts := make(map[int64]int)
	for _, ev := range s.events {
		counts[ev.ParticipantID]++
	}

	hist := make(map[int]int)
	roster := make([]ParticipantFrequency, 0, len(counts))
	attendances := 0
	for id, n := range counts {
		hist[n]++
		attendances += n
		p := s.participants[id]
		roster = append(roster, ParticipantFrequency{ID: id, Nom: p.Nom, Prenom: p.Prenom, Activities: n})
	}
	sort.Slice(roster, func(i, j int) bool {
		if roster[i].Nom != roster[j].Nom {
			return roster[i].Nom < roster[j].Nom
		}
		if roster[i].Prenom != roster[j].Prenom {
			return roster[i].Prenom < roster[j].Prenom
		}
		return roster[i].ID < roster[j].ID
	})

	buckets := make([]FrequencyBucket, 0, len(hist))
	for k, n := range hist {
		buckets = append(buckets, FrequencyBucket{Activities: k, Participants: n})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Activities < buckets[j].Activities })

	return &FrequencyStats{
		Filter:            f,
		TotalParticipants: len(counts),
		TotalAttendances:  attendances,
		Average:           ratio(attendances, len(counts)),
		Histogram:         buckets,
		Participants:      roster,
	}, nil
}

// VisibleParticipants returns the participant IDs the frequency roster exposes under f.
func (e *Engine) VisibleParticipants(ctx context.Context, f filter.Filter) (map[int64]struct{}, error) {
	freq, err := e.Frequency(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]struct{}, len(freq.Participants))
	for _, p := range freq.Participants {
		out[p.ID] = struct{}{}
	}
	return out, nil
}
