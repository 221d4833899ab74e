package stats

import (
	"context"
	"sort"
	"time"

	"example.com/statsimpact/internal/filter"
)

// OccupancyRow is the fill ratio of one activity.
type OccupancyRow struct {
	ActivityID int64     `json:"activite_id"`
	Name       string    `json:"nom"`
	Secteur    string    `json:"secteur"`
	Date       time.Time `json:"date"`
	Present    int       `json:"presents"`
	Capacity   int       `json:"capacite"`
	Ratio      float64   `json:"taux"`
}

// OccupancyStats is the capacity utilization aggregate.
type OccupancyStats struct {
	Filter         filter.Filter  `json:"filter"`
	Activities     int            `json:"activites"`
	WithCapacity   int            `json:"avec_capacite"`
	NoCapacity     int            `json:"sans_capacite"`
	TotalPresent   int            `json:"total_presents"`
	TotalCapacity  int            `json:"total_capacite"`
	Average        float64        `json:"taux_moyen"`
	FillRate       float64        `json:"taux_global"`
	UnderThreshold float64        `json:"seuil_sous_occupation"`
	OverCapacity   []OccupancyRow `json:"sur_occupation"`
	UnderCapacity  []OccupancyRow `json:"sous_occupation"`
}

// Occupancy compares present participants with declared capacity per activity.
// Activities without capacity are tallied in NoCapacity and excluded from Average.
// Demographic filters do not apply: capacity is about the whole room.
func (e *Engine) Occupancy(ctx context.Context, f filter.Filter) (*OccupancyStats, error) {
	defer observe("occupancy", time.Now())

	acts, byID, err := e.loadActivities(ctx, f)
	if err != nil {
		return nil, err
	}
	events, err := e.presentEvents(ctx, byID)
	if err != nil {
		return nil, err
	}

	present := make(map[int64]int, len(acts))
	for _, ev := range events {
		present[ev.ActivityID]++
	}

	out := &OccupancyStats{
		Filter:         f,
		Activities:     len(acts),
		UnderThreshold: e.underThreshold,
		OverCapacity:   []OccupancyRow{},
		UnderCapacity:  []OccupancyRow{},
	}
	ratioSum := 0.0
	for _, act := range acts {
		capacity, ok := act.EffectiveCapacity()
		if !ok {
			out.NoCapacity++
			continue
		}
		row := OccupancyRow{
			ActivityID: act.ID,
			Name:       act.Name,
			Secteur:    act.Secteur,
			Date:       act.Date,
			Present:    present[act.ID],
			Capacity:   capacity,
			Ratio:      ratio(present[act.ID], capacity),
		}
		out.WithCapacity++
		out.TotalPresent += row.Present
		out.TotalCapacity += capacity
		ratioSum += row.Ratio

		switch {
		case row.Ratio > 1:
			out.OverCapacity = append(out.OverCapacity, row)
		case row.Ratio < e.underThreshold:
			out.UnderCapacity = append(out.UnderCapacity, row)
		}
	}

	if out.WithCapacity > 0 {
		out.Average = ratioSum / float64(out.WithCapacity)
	}
	out.FillRate = ratio(out.TotalPresent, out.TotalCapacity)

	sort.SliceStable(out.OverCapacity, func(i, j int) bool { return out.OverCapacity[i].Ratio > out.OverCapacity[j].Ratio })
	sort.SliceStable(out.UnderCapacity, func(i, j int) bool { return out.UnderCapacity[i].Ratio < out.UnderCapacity[j].Ratio })
	return out, nil
}
