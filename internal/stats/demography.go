package stats

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"example.com/statsimpact/internal/domain"
	"example.com/statsimpact/internal/filter"
)

// CategoryCount counts participants in one category.
type CategoryCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// DemographyStats is the demographic breakdown of participants in scope.
type DemographyStats struct {
	Filter            filter.Filter   `json:"filter"`
	TotalParticipants int             `json:"total_participants"`
	ByAge             []CategoryCount `json:"par_age"`
	ByGender          []CategoryCount `json:"par_genre"`
	ByPublicType      []CategoryCount `json:"par_type_public"`
	ByQuartier        []CategoryCount `json:"par_quartier"`
}

type ageBucket struct {
	label    string
	min, max int
}

// ageBuckets lists the reported age ranges in display order; UnknownLabel follows them.
var ageBuckets = []ageBucket{
	{"0-11", 0, 11},
	{"12-17", 12, 17},
	{"18-25", 18, 25},
	{"26-59", 26, 59},
	{"60+", 60, 1 << 30},
}

var genderOrder = []string{string(domain.GenderFemale), string(domain.GenderMale), string(domain.GenderOther), UnknownLabel}

// AgeBucket returns the label of the bucket a birth date falls into on day.
func AgeBucket(birth *time.Time, day time.Time) string {
	if birth == nil {
		return UnknownLabel
	}
	age := AgeAt(*birth, day)
	for _, b := range ageBuckets {
		if age >= b.min && age <= b.max {
			return b.label
		}
	}
	return UnknownLabel
}

// Demography breaks participants in scope down by age bucket, gender, public type and neighbourhood.
func (e *Engine) Demography(ctx context.Context, f filter.Filter) (*DemographyStats, error) {
	defer observe("demography", time.Now())

	s, err := e.loadScope(ctx, f)
	if err != nil {
		return nil, err
	}

	attended := make(map[int64]struct{})
	for _, ev := range s.events {
		attended[ev.ParticipantID] = struct{}{}
	}

	out := &DemographyStats{Filter: f, TotalParticipants: len(attended)}
	if len(attended) == 0 {
		out.ByAge = fixedOrder(nil, ageLabels())
		out.ByGender = fixedOrder(nil, genderOrder)
		out.ByPublicType = []CategoryCount{}
		out.ByQuartier = []CategoryCount{}
		return out, nil
	}

	quartiers, err := e.repo.ListQuartiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quartiers: %w", err)
	}
	quartierNames := make(map[int64]string, len(quartiers))
	for _, q := range quartiers {
		quartierNames[q.ID] = q.Name
	}

	today := e.now()
	age := map[string]int{}
	gender := map[string]int{}
	publicType := map[string]int{}
	quartier := map[string]int{}
	for id := range attended {
		p := s.participants[id]
		age[AgeBucket(p.BirthDate, today)]++

		g := UnknownLabel
		if p.Gender != nil && *p.Gender != "" {
			g = string(*p.Gender)
		}
		gender[g]++

		pt := strings.TrimSpace(p.TypePublic)
		if pt == "" {
			pt = UnknownLabel
		}
		publicType[pt]++

		q := UnknownLabel
		if p.QuartierID != nil {
			if name, ok := quartierNames[*p.QuartierID]; ok {
				q = name
			}
		}
		quartier[q]++
	}

	out.ByAge = fixedOrder(age, ageLabels())
	out.ByGender = fixedOrder(gender, genderOrder)
	out.ByPublicType = byCountDesc(publicType)
	out.ByQuartier = byCountDesc(quartier)
	return out, nil
}

func ageLabels() []string {
	labels := make([]string, 0, len(ageBuckets)+1)
	for _, b := range ageBuckets {
		labels = append(labels, b.label)
	}
	return append(labels, UnknownLabel)
}

func fixedOrder(counts map[string]int, order []string) []CategoryCount {
	out := make([]CategoryCount, 0, len(order))
	for _, key := range order {
		out = append(out, CategoryCount{Key: key, Count: counts[key]})
	}
	return out
}

func byCountDesc(counts map[string]int) []CategoryCount {
	out := make([]CategoryCount, 0, len(counts))
	for key, n := range counts {
		out = append(out, CategoryCount{Key: key, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}
