package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// --- ERREURS DU DOMAINE ---
var (
	ErrIdentityNotFound     = errors.New("identity not found")
	ErrRelationshipNotFound = errors.New("relationship not found")
	// ErrPatientAlreadyLinked : violation de l'invariant "au plus une relation active par patient".
	ErrPatientAlreadyLinked = errors.New("patient already has an active relationship")
	// ErrRelationshipClosed : tentative de re-terminer une relation déjà terminée avec un autre outcome.
	ErrRelationshipClosed = errors.New("relationship already ended")
	ErrIdentitySuspended  = errors.New("identity is suspended")
	ErrInvalidRole        = errors.New("identity role not allowed for this operation")
	ErrInvalidDisplayName = errors.New("display name must not be empty")
)

// --- RÔLES ---

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleTherapist Role = "therapist"
	RolePatient   Role = "patient"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTherapist, RolePatient:
		return true
	}
	return false
}

// --- ENTITÉ ---

// Identity est un compte de la plateforme (admin, thérapeute ou patient).
// Les champs BannedAt/BanReason ne sont mutés QUE par la Suspension Authority.
// Jamais de suppression physique tant que des relationships la référencent.
type Identity struct {
	ID          string
	Role        Role
	DisplayName string
	BannedAt    *time.Time
	BanReason   *string
	CreatedAt   time.Time
}

// NewIdentity crée une instance valide. C'est le SEUL moyen d'obtenir
// une Identity propre (ID généré ici, pas en DB).
func NewIdentity(role Role, displayName string) (*Identity, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if strings.TrimSpace(displayName) == "" {
		return nil, ErrInvalidDisplayName
	}
	return &Identity{
		ID:          uuid.NewString(),
		Role:        role,
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (i *Identity) IsBanned() bool {
	return i.BannedAt != nil
}

// Ban pose le flag de suspension. Idempotent : re-bannir une identité
// déjà bannie conserve le timestamp et la raison d'origine (les actions
// admin concurrentes ne doivent pas produire d'échec visible).
func (i *Identity) Ban(reason string, at time.Time) {
	if i.BannedAt != nil {
		return
	}
	t := at.UTC()
	i.BannedAt = &t
	i.BanReason = &reason
}

// Unban lève la suspension. Idempotent également.
func (i *Identity) Unban() {
	i.BannedAt = nil
	i.BanReason = nil
}
