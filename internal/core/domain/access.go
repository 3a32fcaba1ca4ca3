package domain

import (
	"fmt"
	"time"
)

// --- DÉCISION D'ACCÈS (dérivée, jamais persistée) ---

// CascadeOrigin distingue un refus "propre" (l'identité elle-même est
// bannie / déliée / sortie de soin) d'un refus hérité du thérapeute amont.
// La distinction est porteuse de sens côté client : "contactez le support"
// vs "cherchez un nouveau thérapeute".
type CascadeOrigin string

const (
	OriginSelf     CascadeOrigin = "self"
	OriginUpstream CascadeOrigin = "upstream"
)

type DenialReason string

const (
	DenialBanned     DenialReason = "banned"
	DenialUnlinked   DenialReason = "unlinked"
	DenialDischarged DenialReason = "discharged"
)

// AccessStatus est la réponse de checkAccess. C'est l'unique source de
// vérité côté client ; les signaux de propagation ne sont que des hints.
type AccessStatus struct {
	Denied                bool          `json:"denied"`
	Origin                CascadeOrigin `json:"origin,omitempty"`
	SubReason             DenialReason  `json:"sub_reason,omitempty"`
	Reason                string        `json:"reason,omitempty"`
	BannedAt              *time.Time    `json:"banned_at,omitempty"`
	UpstreamTherapistID   string        `json:"upstream_therapist_id,omitempty"`
	UpstreamTherapistName string        `json:"upstream_therapist_name,omitempty"`
}

// AccessDeniedError est renvoyée par le Session Gate quand une session
// est refusée à la création. Elle transporte le statut complet pour que
// la surface HTTP puisse répondre avec le bon message de recovery.
type AccessDeniedError struct {
	Status *AccessStatus
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied (%s/%s)", e.Status.Origin, e.Status.SubReason)
}

// --- RÉSULTAT DE CASCADE ---

type CascadeAction string

const (
	ActionSuspended   CascadeAction = "suspended"
	ActionReactivated CascadeAction = "reactivated"
	ActionUnlinked    CascadeAction = "unlinked"
	ActionDischarged  CascadeAction = "discharged"
)

// CascadeResult est retourné par chaque mutation de la Suspension
// Authority : l'appelant s'en sert pour piloter la propagation.
// AffectedIDs ne contient PAS l'identité cible elle-même.
type CascadeResult struct {
	IdentityID  string        `json:"identity_id"`
	Action      CascadeAction `json:"action"`
	AffectedIDs []string      `json:"affected_ids"`
}

// Everyone retourne la cible + les identités en cascade, pour la publication.
func (c *CascadeResult) Everyone() []string {
	return append([]string{c.IdentityID}, c.AffectedIDs...)
}

// --- SNAPSHOT DE LECTURE ---

// AccessSnapshot est la photo minimale lue en un seul aller-retour DB :
// l'état de ban de l'identité, son lien actif éventuel (avec l'état de
// ban du thérapeute, lu EN DIRECT : la cascade est dérivée, jamais copiée
// sur le patient), et l'outcome du dernier lien terminé sinon.
type AccessSnapshot struct {
	IdentityID string
	Role       Role
	BannedAt   *time.Time
	BanReason  *string

	// Lien actif (patients uniquement)
	ActiveTherapistID       *string
	ActiveTherapistName     *string
	ActiveTherapistBannedAt *time.Time
	ActiveTherapistBanWhy   *string

	// Dernier lien terminé, consulté seulement s'il n'y a pas de lien actif
	LastOutcome       *RelationshipState
	LastOutcomeReason *string
}

// Access dérive la décision. Fonction pure : toute la sémantique de
// cascade tient ici, le repository ne fait que remplir le snapshot.
func (s *AccessSnapshot) Access() *AccessStatus {
	// 1. Ban direct : prioritaire sur tout le reste.
	if s.BannedAt != nil {
		st := &AccessStatus{
			Denied:    true,
			Origin:    OriginSelf,
			SubReason: DenialBanned,
			BannedAt:  s.BannedAt,
		}
		if s.BanReason != nil {
			st.Reason = *s.BanReason
		}
		return st
	}

	// 2. Seuls les patients héritent d'un refus via le graphe de soin.
	if s.Role != RolePatient {
		return &AccessStatus{}
	}

	// 3. Lien actif : refus en cascade si (et seulement si) le thérapeute
	// est banni au moment de la lecture.
	if s.ActiveTherapistID != nil {
		if s.ActiveTherapistBannedAt != nil {
			st := &AccessStatus{
				Denied:              true,
				Origin:              OriginUpstream,
				SubReason:           DenialBanned,
				BannedAt:            s.ActiveTherapistBannedAt,
				UpstreamTherapistID: *s.ActiveTherapistID,
			}
			if s.ActiveTherapistName != nil {
				st.UpstreamTherapistName = *s.ActiveTherapistName
			}
			if s.ActiveTherapistBanWhy != nil {
				st.Reason = *s.ActiveTherapistBanWhy
			}
			return st
		}
		return &AccessStatus{}
	}

	// 4. Pas de lien actif : le dernier outcome terminé fait foi.
	// Un patient jamais lié (onboarding) reste autorisé.
	if s.LastOutcome != nil {
		var sub DenialReason
		switch *s.LastOutcome {
		case StateUnlinked:
			sub = DenialUnlinked
		case StateDischarged:
			sub = DenialDischarged
		default:
			// transferred sans successeur actif ne devrait pas exister
			// (le transfert est atomique) ; on reste permissif.
			return &AccessStatus{}
		}
		st := &AccessStatus{Denied: true, Origin: OriginSelf, SubReason: sub}
		if s.LastOutcomeReason != nil {
			st.Reason = *s.LastOutcomeReason
		}
		return st
	}

	return &AccessStatus{}
}
