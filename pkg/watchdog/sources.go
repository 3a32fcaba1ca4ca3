package watchdog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Contrat de fil avec le service (subject NATS + clé Redis). Dupliqué ici
// sciemment : une bibliothèque cliente parle le contrat, pas les types
// internes du serveur.
const (
	subjectAccessRevoked = "care.access.revoked"
	signalKeyPrefix      = "care:revoked:"
)

type revocationEvent struct {
	IdentityIDs []string  `json:"identity_ids"`
	Reason      string    `json:"reason"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// hintGate sérialise l'envoi de hints et la fermeture du canal.
// Unsubscribe n'attend pas un callback en vol : sans ce verrou, un
// événement reçu pendant le teardown écrirait sur un canal fermé et
// ferait paniquer tout le process client.
type hintGate struct {
	mu     sync.Mutex
	closed bool
	ch     chan struct{}
}

func newHintGate() *hintGate {
	return &hintGate{ch: make(chan struct{}, 1)}
}

func (g *hintGate) send() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	select {
	case g.ch <- struct{}{}:
	default:
	}
}

func (g *hintGate) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	close(g.ch)
}

// --- SOURCE NATS (push cross-instance) ---

type NATSSource struct {
	conn *nats.Conn
}

func NewNATSSource(conn *nats.Conn) *NATSSource {
	return &NATSSource{conn: conn}
}

// Subscribe filtre les événements de révocation sur l'identité de la
// session. Le hint est livré sans contenu : le watchdog rappellera
// checkAccess de toute façon.
func (s *NATSSource) Subscribe(ctx context.Context, identityID string) (<-chan struct{}, error) {
	gate := newHintGate()

	sub, err := s.conn.Subscribe(subjectAccessRevoked, func(msg *nats.Msg) {
		var event revocationEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return // hint malformé : le plancher de polling couvrira
		}
		for _, id := range event.IdentityIDs {
			if id == identityID {
				gate.send()
				return
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		gate.close()
	}()

	return gate.ch, nil
}

// --- SOURCE HUB (push in-process) ---

// Hinter est la forme du hub in-process du service : les watchdogs qui
// tournent dans le même process (sessions serveur, tests d'intégration)
// s'y branchent directement, sans passer par NATS.
type Hinter interface {
	Subscribe(identityID string) (<-chan string, func())
}

type HubSource struct {
	hub Hinter
}

func NewHubSource(hub Hinter) *HubSource {
	return &HubSource{hub: hub}
}

func (s *HubSource) Subscribe(ctx context.Context, identityID string) (<-chan struct{}, error) {
	hints, unsubscribe := s.hub.Subscribe(identityID)
	out := make(chan struct{}, 1)

	// Un seul writer ici : fermer out depuis la goroutine qui envoie est
	// sûr, pas besoin du gate.
	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-hints:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out, nil
}

// --- SIGNAL REDIS (repli storage) ---

// RedisSignal lit le nonce posé par le serveur. Lecture bien plus légère
// qu'un checkAccess complet, donc pollée plus souvent (SignalInterval).
type RedisSignal struct {
	client *redis.Client
}

func NewRedisSignal(client *redis.Client) *RedisSignal {
	return &RedisSignal{client: client}
}

func (s *RedisSignal) Revoked(ctx context.Context, identityID string) (string, bool, error) {
	val, err := s.client.Get(ctx, signalKeyPrefix+identityID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}
