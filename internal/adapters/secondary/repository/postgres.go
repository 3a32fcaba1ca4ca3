package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MiguelitoPsi/care-lifecycle-service/internal/core/domain"
)

// PostgresRepo implémente IdentityRepository, RelationshipRepository et
// AccessReader sur le même pool : les trois ports lisent/écrivent les
// mêmes tables, les séparer en trois structs n'apporterait rien.
type PostgresRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRepo(pool *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{db: pool}
}

// --- IDENTITÉS ---

func (r *PostgresRepo) Save(ctx context.Context, identity *domain.Identity) error {
	q := `
		INSERT INTO identities (id, role, display_name, banned_at, ban_reason, created_at)
		VALUES (@id, @role, @display_name, @banned_at, @ban_reason, @created_at)
	`
	args := pgx.NamedArgs{
		"id":           identity.ID,
		"role":         string(identity.Role),
		"display_name": identity.DisplayName,
		"banned_at":    identity.BannedAt,
		"ban_reason":   identity.BanReason,
		"created_at":   identity.CreatedAt,
	}
	if _, err := r.db.Exec(ctx, q, args); err != nil {
		return fmt.Errorf("db: save identity: %w", err)
	}
	return nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	q := `SELECT id, role, display_name, banned_at, ban_reason, created_at FROM identities WHERE id = $1`

	var i domain.Identity
	var role string
	err := r.db.QueryRow(ctx, q, id).Scan(&i.ID, &role, &i.DisplayName, &i.BannedAt, &i.BanReason, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("db: get identity: %w", err)
	}
	i.Role = domain.Role(role)
	return &i, nil
}

// Ban : flip du flag + lecture des patients actifs dans LA MÊME
// transaction. COALESCE rend l'opération idempotente (un ban existant
// garde son timestamp et sa raison d'origine). Le calcul de cascade est
// dérivé à la lecture de toute façon, mais l'atomicité donne à l'appelant
// un ensemble affecté cohérent avec l'instant exact du ban.
func (r *PostgresRepo) Ban(ctx context.Context, id, reason string, at time.Time) ([]string, error) {
	return r.setBanned(ctx, id, &reason, &at)
}

func (r *PostgresRepo) Unban(ctx context.Context, id string) ([]string, error) {
	return r.setBanned(ctx, id, nil, nil)
}

func (r *PostgresRepo) setBanned(ctx context.Context, id string, reason *string, at *time.Time) (affected []string, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("db: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // no-op après commit

	var q string
	var args []any
	if at != nil {
		q = `UPDATE identities SET banned_at = COALESCE(banned_at, $2), ban_reason = COALESCE(ban_reason, $3) WHERE id = $1`
		args = []any{id, at.UTC(), reason}
	} else {
		q = `UPDATE identities SET banned_at = NULL, ban_reason = NULL WHERE id = $1`
		args = []any{id}
	}

	tag, err := tx.Exec(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db: set banned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrIdentityNotFound
	}

	rows, err := tx.Query(ctx,
		`SELECT patient_id FROM relationships WHERE therapist_id = $1 AND state = 'active'`, id)
	if err != nil {
		return nil, fmt.Errorf("db: cascade read: %w", err)
	}
	affected, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("db: cascade scan: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("db: commit: %w", err)
	}
	return affected, nil
}

// --- LECTURE D'ACCÈS ---

// Snapshot : une seule requête, aucune écriture, aucun verrou.
// L'état de ban du thérapeute amont est joint EN DIRECT : on ne copie
// jamais le flag sur le patient, donc la réactivation ne touche qu'une ligne.
func (r *PostgresRepo) Snapshot(ctx context.Context, identityID string) (*domain.AccessSnapshot, error) {
	q := `
		SELECT i.id, i.role, i.banned_at, i.ban_reason,
		       t.id, t.display_name, t.banned_at, t.ban_reason,
		       last.state, last.reason
		FROM identities i
		LEFT JOIN relationships r ON r.patient_id = i.id AND r.state = 'active'
		LEFT JOIN identities t ON t.id = r.therapist_id
		LEFT JOIN LATERAL (
			SELECT state, reason
			FROM relationships
			WHERE patient_id = i.id AND state <> 'active'
			ORDER BY ended_at DESC
			LIMIT 1
		) last ON r.id IS NULL
		WHERE i.id = $1
	`

	var s domain.AccessSnapshot
	var role string
	var lastState *string
	err := r.db.QueryRow(ctx, q, identityID).Scan(
		&s.IdentityID, &role, &s.BannedAt, &s.BanReason,
		&s.ActiveTherapistID, &s.ActiveTherapistName, &s.ActiveTherapistBannedAt, &s.ActiveTherapistBanWhy,
		&lastState, &s.LastOutcomeReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("db: access snapshot: %w", err)
	}
	s.Role = domain.Role(role)
	if lastState != nil {
		st := domain.RelationshipState(*lastState)
		s.LastOutcome = &st
	}
	return &s, nil
}

// --- HELPERS ---

// handleError traduit les codes d'erreur PostgreSQL en erreurs du Domaine.
func handleError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23505 sur l'index unique partiel = deuxième lien actif pour le patient
		if pgErr.Code == "23505" {
			return domain.ErrPatientAlreadyLinked
		}
		// 23503 = FK violation (identité inconnue)
		if pgErr.Code == "23503" {
			return domain.ErrIdentityNotFound
		}
	}
	return err
}
