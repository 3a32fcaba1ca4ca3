package propagation

import (
	"context"
	"log/slog"
)

// broker est satisfait par eventbroker.NatsBroker.
type broker interface {
	PublishAccessRevoked(ctx context.Context, identityIDs []string, reason string) error
}

// Bus implémente ports.PropagationBus en empilant les canaux par
// immédiateté décroissante et portée croissante :
//  1. hub in-process (instantané, cette instance seulement)
//  2. NATS (cross-instance)
//  3. clé Redis (repli pour qui a raté les deux pushes)
// Le quatrième canal, le plancher de polling, vit côté client dans le
// watchdog : il ne dépend d'aucune publication.
//
// Chaque canal est best-effort : un échec est loggé en Warn et n'arrête
// ni les canaux suivants ni, surtout, l'écriture autoritaire déjà commitée.
type Bus struct {
	hub    *Hub
	broker broker
	signal *RedisSignal
}

func NewBus(hub *Hub, b broker, signal *RedisSignal) *Bus {
	return &Bus{hub: hub, broker: b, signal: signal}
}

func (b *Bus) Publish(ctx context.Context, identityIDs []string, reason string) {
	if b.hub != nil {
		b.hub.Broadcast(identityIDs, reason)
	}

	if b.broker != nil {
		if err := b.broker.PublishAccessRevoked(ctx, identityIDs, reason); err != nil {
			slog.Warn("⚠️ Propagation push failed (poll floor will catch up)",
				"channel", "nats", "error", err)
		}
	}

	if b.signal != nil {
		if err := b.signal.Signal(ctx, identityIDs); err != nil {
			slog.Warn("⚠️ Propagation signal failed (poll floor will catch up)",
				"channel", "redis", "error", err)
		}
	}
}
