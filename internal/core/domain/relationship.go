package domain

import (
	"time"

	"github.com/google/uuid"
)

// --- ÉTATS DU LIEN DE SOIN ---

type RelationshipState string

const (
	StateActive      RelationshipState = "active"
	StateUnlinked    RelationshipState = "unlinked"
	StateDischarged  RelationshipState = "discharged"
	StateTransferred RelationshipState = "transferred"
)

// Terminal indique si l'état est une sortie définitive de "active".
func (s RelationshipState) Terminal() bool {
	switch s {
	case StateUnlinked, StateDischarged, StateTransferred:
		return true
	}
	return false
}

// --- ENTITÉ ---

// Relationship est un lien de soin dirigé : exactement un thérapeute,
// exactement un patient. Il sort d'"active" exactement une fois
// (unlinked, discharged ou transferred) puis devient immuable : on garde
// l'historique pour l'audit, on ne supprime jamais.
type Relationship struct {
	ID          string
	TherapistID string
	PatientID   string
	State       RelationshipState
	Reason      *string
	CreatedAt   time.Time
	EndedAt     *time.Time
}

func NewRelationship(therapistID, patientID string) *Relationship {
	return &Relationship{
		ID:          uuid.NewString(),
		TherapistID: therapistID,
		PatientID:   patientID,
		State:       StateActive,
		CreatedAt:   time.Now().UTC(),
	}
}

func (r *Relationship) IsActive() bool {
	return r.State == StateActive
}

// End fait transitionner le lien vers un état terminal.
// Rejouer le même outcome est un no-op succès (les retries réseau ne
// doivent pas double-appliquer les effets). Un outcome différent sur un
// lien déjà terminé est un conflit, jamais réconcilié silencieusement.
func (r *Relationship) End(outcome RelationshipState, reason *string, at time.Time) error {
	if !outcome.Terminal() {
		return ErrRelationshipClosed
	}
	if r.State != StateActive {
		if r.State == outcome {
			return nil // retry idempotent
		}
		return ErrRelationshipClosed
	}
	t := at.UTC()
	r.State = outcome
	r.Reason = reason
	r.EndedAt = &t
	return nil
}
