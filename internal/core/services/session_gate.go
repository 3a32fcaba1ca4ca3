package services

import (
	"context"
	"fmt"

	"github.com/MiguelitoPsi/care-lifecycle-service/internal/core/domain"
	"github.com/MiguelitoPsi/care-lifecycle-service/internal/core/ports"
)

// SessionGate enveloppe l'autorité de session : avant de frapper le
// moindre token, on vérifie checkAccess. Une identité refusée n'obtient
// pas de session du tout. Les sessions créées AVANT le refus, elles,
// relèvent du Propagation Bus.
type SessionGate struct {
	care   ports.CareLifecycleService
	tokens ports.TokenProvider
}

func NewSessionGate(care ports.CareLifecycleService, tokens ports.TokenProvider) *SessionGate {
	return &SessionGate{care: care, tokens: tokens}
}

func (g *SessionGate) Open(ctx context.Context, identityID string) (string, error) {
	status, err := g.care.CheckAccess(ctx, identityID)
	if err != nil {
		return "", fmt.Errorf("session gate pre-check: %w", err)
	}
	if status.Denied {
		return "", &domain.AccessDeniedError{Status: status}
	}

	identity, err := g.care.GetIdentity(ctx, identityID)
	if err != nil {
		return "", err
	}

	return g.tokens.Generate(identity)
}

func (g *SessionGate) Verify(ctx context.Context, token string) (string, error) {
	return g.tokens.Validate(token)
}
