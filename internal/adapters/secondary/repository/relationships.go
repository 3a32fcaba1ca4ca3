package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MiguelitoPsi/care-lifecycle-service/internal/core/domain"
)

// --- LIENS DE SOIN ---

func (r *PostgresRepo) Create(ctx context.Context, rel *domain.Relationship) error {
	q := `
		INSERT INTO relationships (id, therapist_id, patient_id, state, reason, created_at, ended_at)
		VALUES (@id, @therapist_id, @patient_id, @state, @reason, @created_at, @ended_at)
	`
	args := pgx.NamedArgs{
		"id":           rel.ID,
		"therapist_id": rel.TherapistID,
		"patient_id":   rel.PatientID,
		"state":        string(rel.State),
		"reason":       rel.Reason,
		"created_at":   rel.CreatedAt,
		"ended_at":     rel.EndedAt,
	}
	if _, err := r.db.Exec(ctx, q, args); err != nil {
		return handleError(err)
	}
	return nil
}

func (r *PostgresRepo) GetRelationship(ctx context.Context, id string) (*domain.Relationship, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, therapist_id, patient_id, state, reason, created_at, ended_at
		 FROM relationships WHERE id = $1`, id)
	return scanRelationship(row)
}

// End rejoue la transition du domaine sous verrou de ligne : le SELECT
// FOR UPDATE sérialise les fins concurrentes du même lien (deux clics
// thérapeute, retries réseau) sans recourir à un retry optimiste.
func (r *PostgresRepo) End(ctx context.Context, id string, outcome domain.RelationshipState, reason *string, at time.Time) (*domain.Relationship, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("db: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rel, err := lockRelationship(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	wasActive := rel.IsActive()
	if err := rel.End(outcome, reason, at); err != nil {
		return nil, err
	}

	// Retry idempotent : le lien était déjà terminé avec le même outcome,
	// rien à écrire, pas de side effect à rejouer.
	if wasActive {
		if err := updateEnded(ctx, tx, rel); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("db: commit: %w", err)
	}
	return rel, nil
}

// Transfer : fin de l'ancien lien + création du nouveau, une seule
// transaction. Soit les deux écritures commitent, soit aucune : le
// patient a toujours un lien actif, ou un enregistrement `transferred`
// qui explique pourquoi il n'en a plus.
func (r *PostgresRepo) Transfer(ctx context.Context, id, newTherapistID string, reason *string, at time.Time) (*domain.Relationship, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("db: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	old, err := lockRelationship(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	wasActive := old.IsActive()
	if err := old.End(domain.StateTransferred, reason, at); err != nil {
		return nil, err
	}
	if !wasActive {
		// Branche idempotente de End : le lien était déjà transféré. On ne
		// recrée pas de successeur, le premier transfert l'a déjà fait.
		return nil, domain.ErrRelationshipClosed
	}
	if err := updateEnded(ctx, tx, old); err != nil {
		return nil, err
	}

	next := domain.NewRelationship(newTherapistID, old.PatientID)
	q := `
		INSERT INTO relationships (id, therapist_id, patient_id, state, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, q, next.ID, next.TherapistID, next.PatientID, string(next.State), nil, next.CreatedAt); err != nil {
		return nil, handleError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("db: commit: %w", err)
	}
	return next, nil
}

// --- HELPERS ---

func lockRelationship(ctx context.Context, tx pgx.Tx, id string) (*domain.Relationship, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, therapist_id, patient_id, state, reason, created_at, ended_at
		 FROM relationships WHERE id = $1 FOR UPDATE`, id)
	return scanRelationship(row)
}

func updateEnded(ctx context.Context, tx pgx.Tx, rel *domain.Relationship) error {
	q := `UPDATE relationships SET state = $2, reason = $3, ended_at = $4 WHERE id = $1`
	if _, err := tx.Exec(ctx, q, rel.ID, string(rel.State), rel.Reason, rel.EndedAt); err != nil {
		return fmt.Errorf("db: end relationship: %w", err)
	}
	return nil
}

func scanRelationship(row pgx.Row) (*domain.Relationship, error) {
	var rel domain.Relationship
	var state string
	err := row.Scan(&rel.ID, &rel.TherapistID, &rel.PatientID, &state, &rel.Reason, &rel.CreatedAt, &rel.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRelationshipNotFound
		}
		return nil, fmt.Errorf("db: scan relationship: %w", err)
	}
	rel.State = domain.RelationshipState(state)
	return &rel, nil
}
