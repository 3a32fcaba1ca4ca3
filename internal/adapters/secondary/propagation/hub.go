package propagation

import (
	"sync"
)

// Hub est le fan-out same-process : immédiat, mais ne touche que les
// sessions branchées sur CETTE instance (streams websocket locaux,
// watchdogs in-process). Les autres instances passent par NATS, les
// retardataires par le signal Redis ou le plancher de polling.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan string]struct{} // identityID -> abonnés
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan string]struct{})}
}

// Subscribe retourne un canal de hints et une fonction de désabonnement.
// Le canal est bufferisé à 1 : recevoir deux fois le même hint n'apporte
// rien, un re-check est déjà en attente.
func (h *Hub) Subscribe(identityID string) (<-chan string, func()) {
	ch := make(chan string, 1)

	h.mu.Lock()
	if h.subs[identityID] == nil {
		h.subs[identityID] = make(map[chan string]struct{})
	}
	h.subs[identityID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[identityID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, identityID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// HasSubscribers indique si au moins une session écoute cette identité.
func (h *Hub) HasSubscribers(identityID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[identityID]) > 0
}

// Broadcast pousse un hint vers chaque abonné des identités visées.
// Envoi non bloquant : un abonné saturé a déjà un hint en attente,
// le coalescing fait le reste.
func (h *Hub) Broadcast(identityIDs []string, reason string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range identityIDs {
		for ch := range h.subs[id] {
			select {
			case ch <- reason:
			default:
			}
		}
	}
}
