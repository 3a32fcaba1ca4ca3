package ports

import (
	"context"
	"time"

	"github.com/MiguelitoPsi/care-lifecycle-service/internal/core/domain"
)

// --- PERSISTANCE (DB) ---

// IdentityRepository est le Port Secondaire (Driven) vers l'annuaire
// d'identités. Ban/Unban sont des opérations composites : le flip du flag
// ET la lecture des patients actifs du thérapeute partagent la même
// transaction, sinon un lien créé pendant le calcul de cascade y échappe.
type IdentityRepository interface {
	Save(ctx context.Context, identity *domain.Identity) error
	GetByID(ctx context.Context, id string) (*domain.Identity, error)

	// Ban pose banned_at/ban_reason (idempotent : un ban existant est
	// conservé) et retourne les IDs des patients ayant une relation
	// active vers cette identité (vide pour un non-thérapeute).
	Ban(ctx context.Context, id, reason string, at time.Time) (affected []string, err error)

	// Unban efface le flag et retourne le même ensemble, recalculé EN
	// DIRECT : un patient délié pendant la fenêtre de suspension en est
	// correctement exclu.
	Unban(ctx context.Context, id string) (affected []string, err error)
}

// RelationshipRepository persiste le graphe de soin. Les invariants
// transactionnels (au plus un lien actif par patient, transfert atomique)
// vivent ici, au plus près de la DB.
type RelationshipRepository interface {
	// Create insère un lien actif. ErrPatientAlreadyLinked si le patient
	// en a déjà un (index unique partiel côté Postgres).
	Create(ctx context.Context, rel *domain.Relationship) error

	GetRelationship(ctx context.Context, id string) (*domain.Relationship, error)

	// End termine le lien (sémantique de domain.Relationship.End, rejouée
	// sous verrou : retry même-outcome = no-op succès).
	End(ctx context.Context, id string, outcome domain.RelationshipState, reason *string, at time.Time) (*domain.Relationship, error)

	// Transfer termine l'ancien lien (transferred) et crée le nouveau lien
	// actif dans LA MÊME transaction : un crash entre les deux étapes ne
	// doit jamais laisser le patient sans lien actif ni trace du pourquoi.
	Transfer(ctx context.Context, id, newTherapistID string, reason *string, at time.Time) (*domain.Relationship, error)
}

// AccessReader est la lecture « chaude » : un seul aller-retour, aucun
// verrou, exécutable en concurrence totale avec les writers.
type AccessReader interface {
	Snapshot(ctx context.Context, identityID string) (*domain.AccessSnapshot, error)
}

// --- PROPAGATION (Bus) ---

// PropagationBus prévient les sessions déjà établies qu'un re-check
// s'impose. Best-effort, at-least-once, fire-and-forget : un échec de
// publication ne remonte JAMAIS à l'appelant de suspend/unlink. La
// correction repose sur le plancher de polling et le Session Gate.
type PropagationBus interface {
	Publish(ctx context.Context, identityIDs []string, reason string)
}

// --- AUTORITÉ DE SESSION (Crypto) ---

// TokenProvider abstrait l'émission/validation de tokens de session.
// La gestion des credentials (mots de passe, OAuth) est hors de ce
// service ; on ne voit que la capacité à frapper et vérifier un token.
type TokenProvider interface {
	Generate(identity *domain.Identity) (string, error)
	Validate(token string) (identityID string, err error)
}
