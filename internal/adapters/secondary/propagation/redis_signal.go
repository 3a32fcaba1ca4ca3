package propagation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const signalKeyPrefix = "care:revoked:"

// RedisSignal est le canal de repli "durable-storage" : une petite clé
// partagée avec un nonce, que les watchdogs relisent à bas coût même
// s'ils ont raté le fan-out direct et le push NATS. TTL court : passé
// un tick de poll complet, le signal n'a plus de valeur.
type RedisSignal struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSignal(client *redis.Client) *RedisSignal {
	return &RedisSignal{client: client, ttl: 30 * time.Second}
}

// Signal écrit un nonce par identité visée, en pipeline (même motif que
// le fan-out de timelines : une seule rafle réseau pour N clés).
func (s *RedisSignal) Signal(ctx context.Context, identityIDs []string) error {
	pipe := s.client.Pipeline()
	nonce := uuid.NewString()
	for _, id := range identityIDs {
		pipe.Set(ctx, signalKeyPrefix+id, nonce, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis signal: %w", err)
	}
	return nil
}

// Revoked lit le nonce courant pour une identité. ok=false si aucun
// signal récent. C'est un hint : le consommateur rappelle checkAccess,
// il ne déduit RIEN de la seule présence de la clé.
func (s *RedisSignal) Revoked(ctx context.Context, identityID string) (nonce string, ok bool, err error) {
	val, err := s.client.Get(ctx, signalKeyPrefix+identityID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis signal read: %w", err)
	}
	return val, true, nil
}
