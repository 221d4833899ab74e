package memory

import (
	"time"

	"example.com/statsimpact/internal/domain"
)

// Seed loads a small sample data set for local development.
func (r *Repository) Seed(year int) {
	capacity := func(n int) *int { return &n }
	day := func(month time.Month, d int) time.Time { return time.Date(year, month, d, 14, 0, 0, 0, time.UTC) }

	r.AddQuartier(domain.Quartier{ID: 1, Name: "Centre"})
	r.AddQuartier(domain.Quartier{ID: 2, Name: "Gare"})

	r.AddWorkshop(domain.Workshop{ID: 1, Name: "Aide aux devoirs", Secteur: "Jeunesse", DefaultCapacity: capacity(12)})
	r.AddWorkshop(domain.Workshop{ID: 2, Name: "Atelier CV", Secteur: "Emploi", DefaultCapacity: capacity(8)})
	r.AddWorkshop(domain.Workshop{ID: 3, Name: "Repas partagé", Secteur: "Familles"})

	r.AddActivity(domain.Activity{ID: 1, WorkshopID: 1, Name: "Aide aux devoirs", Secteur: "Jeunesse", Date: day(time.February, 3)})
	r.AddActivity(domain.Activity{ID: 2, WorkshopID: 1, Name: "Aide aux devoirs", Secteur: "Jeunesse", Date: day(time.March, 10)})
	r.AddActivity(domain.Activity{ID: 3, WorkshopID: 2, Name: "Atelier CV", Secteur: "Emploi", Date: day(time.March, 12), Capacity: capacity(6)})
	r.AddActivity(domain.Activity{ID: 4, WorkshopID: 3, Name: "Repas partagé", Secteur: "Familles", Date: day(time.April, 5)})

	female, male := domain.GenderFemale, domain.GenderMale
	born := func(y int) *time.Time { t := time.Date(y, time.June, 1, 0, 0, 0, 0, time.UTC); return &t }
	quartier := func(id int64) *int64 { return &id }

	r.AddParticipant(domain.Participant{ID: 1, Nom: "Martin", Prenom: "Lea", BirthDate: born(year - 14), Gender: &female, QuartierID: quartier(1), TypePublic: "JEUNE"})
	r.AddParticipant(domain.Participant{ID: 2, Nom: "Bernard", Prenom: "Yanis", BirthDate: born(year - 22), Gender: &male, QuartierID: quartier(2), TypePublic: "ADULTE"})
	r.AddParticipant(domain.Participant{ID: 3, Nom: "Petit", Prenom: "Nora", TypePublic: "FAMILLE"})

	r.AddParticipation(domain.Participation{ActivityID: 1, ParticipantID: 1, Present: true})
	r.AddParticipation(domain.Participation{ActivityID: 2, ParticipantID: 1, Present: true})
	r.AddParticipation(domain.Participation{ActivityID: 2, ParticipantID: 2, Present: true})
	r.AddParticipation(domain.Participation{ActivityID: 3, ParticipantID: 2, Present: true})
	r.AddParticipation(domain.Participation{ActivityID: 4, ParticipantID: 3, Present: true})
	r.AddParticipation(domain.Participation{ActivityID: 4, ParticipantID: 1, Present: false})
}
