package ports

import (
	"context"

	"github.com/MiguelitoPsi/care-lifecycle-service/internal/core/domain"
)

// --- INPUTS (Command Pattern) ---
// Des structs plutôt que des listes d'arguments : on pourra enrichir
// (acteur, idempotency key...) sans casser les signatures.

type CreateRelationshipCmd struct {
	TherapistID string
	PatientID   string
}

type EndRelationshipCmd struct {
	RelationshipID string
	Outcome        domain.RelationshipState // unlinked ou discharged
	Reason         *string
}

type TransferCmd struct {
	RelationshipID string
	NewTherapistID string
	Reason         *string
}

// --- PORT PRIMAIRE (Driving) ---

// CareLifecycleService est l'API que l'hexagone expose au monde extérieur
// (HTTP admin/thérapeute, et le endpoint de poll des clients).
type CareLifecycleService interface {
	// Relationship Store
	CreateRelationship(ctx context.Context, cmd CreateRelationshipCmd) (*domain.Relationship, error)
	EndRelationship(ctx context.Context, cmd EndRelationshipCmd) (*domain.CascadeResult, error)
	Transfer(ctx context.Context, cmd TransferCmd) (*domain.Relationship, error)

	// Suspension Authority
	Suspend(ctx context.Context, identityID, reason string) (*domain.CascadeResult, error)
	Reactivate(ctx context.Context, identityID string) (*domain.CascadeResult, error)

	// Lecture pure, appelée par chaque watchdog à chaque tick :
	// pas d'effet de bord, pas de recalcul de cascade, juste une photo.
	CheckAccess(ctx context.Context, identityID string) (*domain.AccessStatus, error)

	GetIdentity(ctx context.Context, identityID string) (*domain.Identity, error)
}

// SessionGate est le point d'enforcement à la création de session.
// Une identité refusée n'obtient JAMAIS de token : c'est le complément
// synchrone du Propagation Bus, qui lui s'occupe des sessions déjà vivantes.
type SessionGate interface {
	Open(ctx context.Context, identityID string) (token string, err error)
	Verify(ctx context.Context, token string) (identityID string, err error)
}
