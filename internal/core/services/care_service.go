package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MiguelitoPsi/care-lifecycle-service/internal/core/domain"
	"github.com/MiguelitoPsi/care-lifecycle-service/internal/core/ports"
)

// CareService implémente ports.CareLifecycleService (Primary Port).
// Il est l'unique writer de l'état de ban/cascade : suspend, reactivate
// et unlink/discharge passent tous par ici. checkAccess en revanche ne
// fait que lire de l'état déjà commité et ne bloque jamais sur les writers.
type CareService struct {
	identities    ports.IdentityRepository
	relationships ports.RelationshipRepository
	access        ports.AccessReader
	bus           ports.PropagationBus
	now           func() time.Time // injectable pour les tests
}

func NewCareService(
	identities ports.IdentityRepository,
	relationships ports.RelationshipRepository,
	access ports.AccessReader,
	bus ports.PropagationBus,
) *CareService {
	return &CareService{
		identities:    identities,
		relationships: relationships,
		access:        access,
		bus:           bus,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// --- RELATIONSHIP STORE ---

func (s *CareService) CreateRelationship(ctx context.Context, cmd ports.CreateRelationshipCmd) (*domain.Relationship, error) {
	// 1. Vérifier les deux parties (rôles + état de suspension).
	therapist, err := s.identities.GetByID(ctx, cmd.TherapistID)
	if err != nil {
		return nil, err
	}
	patient, err := s.identities.GetByID(ctx, cmd.PatientID)
	if err != nil {
		return nil, err
	}
	if therapist.Role != domain.RoleTherapist || patient.Role != domain.RolePatient {
		return nil, domain.ErrInvalidRole
	}
	// Un thérapeute suspendu ne prend pas de nouveaux patients ; un
	// patient banni ne se fait pas relier discrètement.
	if therapist.IsBanned() || patient.IsBanned() {
		return nil, domain.ErrIdentitySuspended
	}

	// 2. Insertion. L'unicité "un seul lien actif par patient" est
	// tranchée par la DB, pas par une vérification soft ici (race).
	rel := domain.NewRelationship(cmd.TherapistID, cmd.PatientID)
	if err := s.relationships.Create(ctx, rel); err != nil {
		return nil, err
	}

	// 3. Hint de propagation : un patient précédemment refusé
	// (unlinked/discharged) redevient autorisé dès maintenant, son
	// watchdog n'a pas besoin d'attendre le prochain tick.
	s.publish(ctx, []string{patient.ID}, "relationship.created")

	return rel, nil
}

func (s *CareService) EndRelationship(ctx context.Context, cmd ports.EndRelationshipCmd) (*domain.CascadeResult, error) {
	// unlink et discharge uniquement : le transfert a sa propre opération atomique.
	if cmd.Outcome != domain.StateUnlinked && cmd.Outcome != domain.StateDischarged {
		return nil, fmt.Errorf("outcome %q: %w", cmd.Outcome, domain.ErrRelationshipClosed)
	}

	rel, err := s.relationships.End(ctx, cmd.RelationshipID, cmd.Outcome, cmd.Reason, s.now())
	if err != nil {
		return nil, err
	}

	action := domain.ActionUnlinked
	if cmd.Outcome == domain.StateDischarged {
		action = domain.ActionDischarged
	}
	result := &domain.CascadeResult{
		IdentityID: rel.PatientID,
		Action:     action,
	}

	// Le patient passe en refus self/unlinked|discharged : sa session
	// vivante doit le découvrir au plus vite.
	s.publish(ctx, []string{rel.PatientID}, string(action))

	return result, nil
}

func (s *CareService) Transfer(ctx context.Context, cmd ports.TransferCmd) (*domain.Relationship, error) {
	newTherapist, err := s.identities.GetByID(ctx, cmd.NewTherapistID)
	if err != nil {
		return nil, err
	}
	if newTherapist.Role != domain.RoleTherapist {
		return nil, domain.ErrInvalidRole
	}
	if newTherapist.IsBanned() {
		return nil, domain.ErrIdentitySuspended
	}

	// Fin de l'ancien lien + création du nouveau : une seule unité
	// atomique, déléguée au repository (même transaction DB).
	rel, err := s.relationships.Transfer(ctx, cmd.RelationshipID, cmd.NewTherapistID, cmd.Reason, s.now())
	if err != nil {
		return nil, err
	}

	// Le patient change d'amont : s'il était refusé en cascade via
	// l'ancien thérapeute, il ne l'est peut-être plus. Re-check.
	s.publish(ctx, []string{rel.PatientID}, "relationship.transferred")

	return rel, nil
}

// --- SUSPENSION AUTHORITY ---

func (s *CareService) Suspend(ctx context.Context, identityID, reason string) (*domain.CascadeResult, error) {
	// Ban + lecture des patients actifs dans UNE transaction (repository).
	// Suspendre une identité déjà suspendue est un no-op succès.
	affected, err := s.identities.Ban(ctx, identityID, reason, s.now())
	if err != nil {
		return nil, err
	}

	result := &domain.CascadeResult{
		IdentityID:  identityID,
		Action:      domain.ActionSuspended,
		AffectedIDs: affected,
	}

	slog.Info("⛔ Identity suspended", "identity_id", identityID, "cascade_size", len(affected))
	s.publish(ctx, result.Everyone(), "suspended")

	return result, nil
}

func (s *CareService) Reactivate(ctx context.Context, identityID string) (*domain.CascadeResult, error) {
	// L'ensemble affecté est recalculé EN DIRECT au moment du unban :
	// un patient délié pendant la fenêtre de suspension n'y figure plus,
	// donc il reste refusé (discharge/unlink gagne sur la réactivation).
	affected, err := s.identities.Unban(ctx, identityID)
	if err != nil {
		return nil, err
	}

	result := &domain.CascadeResult{
		IdentityID:  identityID,
		Action:      domain.ActionReactivated,
		AffectedIDs: affected,
	}

	slog.Info("✅ Identity reactivated", "identity_id", identityID, "cascade_size", len(affected))
	s.publish(ctx, result.Everyone(), "reactivated")

	return result, nil
}

// CheckAccess est la lecture chaude appelée par chaque session à chaque
// tick de poll. Une seule photo DB, dérivation pure, zéro effet de bord.
// En cas d'erreur de lecture on retourne l'erreur, jamais un refus : un
// backend en vrac ne doit pas éjecter des sessions qu'il ne peut pas vérifier.
func (s *CareService) CheckAccess(ctx context.Context, identityID string) (*domain.AccessStatus, error) {
	snap, err := s.access.Snapshot(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("access snapshot: %w", err)
	}
	return snap.Access(), nil
}

func (s *CareService) GetIdentity(ctx context.Context, identityID string) (*domain.Identity, error) {
	return s.identities.GetByID(ctx, identityID)
}

// --- HELPERS ---

// publish signale le bus APRÈS le commit de l'écriture autoritaire.
// Fire-and-forget : la propagation est une optimisation de latence,
// jamais une condition de succès de l'opération.
func (s *CareService) publish(ctx context.Context, ids []string, reason string) {
	if s.bus == nil || len(ids) == 0 {
		return
	}
	s.bus.Publish(ctx, ids, reason)
}
