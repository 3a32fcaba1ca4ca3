package eventbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	StreamName = "CARE"
	// SubjectAccessRevoked : hint content-free. Les consommateurs
	// rappellent checkAccess, ils ne lisent JAMAIS l'état dans le
	// message lui-même.
	SubjectAccessRevoked = "care.access.revoked"
	SubjectPattern       = "care.>"
)

type NatsBroker struct {
	js jetstream.JetStream
}

// NewNatsBroker initialise la connexion et s'assure que le Stream existe (idempotent).
func NewNatsBroker(url string) (*NatsBroker, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Rétention courte : l'événement est un hint éphémère, pas une source
	// de vérité. Passé l'âge d'un tick de poll, il ne vaut plus rien.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPattern},
		Storage:  jetstream.MemoryStorage,
		MaxAge:   time.Minute,
		Replicas: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}

	return &NatsBroker{js: js}, nil
}

// RevocationEvent : payload de l'événement. At-least-once, sans ordre
// garanti entre canaux : les consommateurs doivent être idempotents.
type RevocationEvent struct {
	IdentityIDs []string  `json:"identity_ids"`
	Reason      string    `json:"reason"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (n *NatsBroker) PublishAccessRevoked(ctx context.Context, identityIDs []string, reason string) error {
	event := RevocationEvent{
		IdentityIDs: identityIDs,
		Reason:      reason,
		OccurredAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Injection du contexte de trace dans les headers NATS : la chaîne
	// suspend -> publish -> watchdog re-check reste visible dans Jaeger.
	msg := nats.NewMsg(SubjectAccessRevoked)
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	if _, err := n.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}
