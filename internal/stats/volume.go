package stats

import (
	"context"
	"sort"
	"time"

	"example.com/statsimpact/internal/filter"
)

// VolumeRow counts activities, participation events and distinct participants for one key.
type VolumeRow struct {
	Key          string `json:"key"`
	Activities   int    `json:"activites"`
	Events       int    `json:"participations"`
	Participants int    `json:"participants"`
}

// VolumeStats is the activity volume aggregate.
type VolumeStats struct {
	Filter   filter.Filter `json:"filter"`
	Total    VolumeRow     `json:"total"`
	BySector []VolumeRow   `json:"par_secteur"`
	ByMonth  []VolumeRow   `json:"par_mois"`
}

type volumeAcc struct {
	activities   int
	events       int
	participants map[int64]struct{}
}

func (a *volumeAcc) row(key string) VolumeRow {
	return VolumeRow{Key: key, Activities: a.activities, Events: a.events, Participants: len(a.participants)}
}

// Volume counts activities and participation events grouped by sector and by month.
func (e *Engine) Volume(ctx context.Context, f filter.Filter) (*VolumeStats, error) {
	defer observe("volume", time.Now())

	s, err := e.loadScope(ctx, f)
	if err != nil {
		return nil, err
	}

	total := &volumeAcc{participants: map[int64]struct{}{}}
	bySector := map[string]*volumeAcc{}
	byMonth := map[string]*volumeAcc{}
	acc := func(m map[string]*volumeAcc, key string) *volumeAcc {
		a, ok := m[key]
		if !ok {
			a = &volumeAcc{participants: map[int64]struct{}{}}
			m[key] = a
		}
		return a
	}

	for _, act := range s.activities {
		total.activities++
		acc(bySector, sectorLabel(act.Secteur)).activities++
		acc(byMonth, act.Date.Format("2006-01")).activities++
	}
	for _, ev := range s.events {
		act := s.byID[ev.ActivityID]
		for _, a := range []*volumeAcc{total, acc(bySector, sectorLabel(act.Secteur)), acc(byMonth, act.Date.Format("2006-01"))} {
			a.events++
			a.participants[ev.ParticipantID] = struct{}{}
		}
	}

	return &VolumeStats{
		Filter:   f,
		Total:    total.row("total"),
		BySector: sortedRows(bySector),
		ByMonth:  sortedRows(byMonth),
	}, nil
}

func sortedRows(m map[string]*volumeAcc) []VolumeRow {
	rows := make([]VolumeRow, 0, len(m))
	for key, a := range m {
		rows = append(rows, a.row(key))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}
