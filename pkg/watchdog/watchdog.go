// Package watchdog implémente l'observateur par session : il s'abonne aux
// canaux de propagation (push NATS, signal Redis), polle checkAccess sur
// un intervalle fixe (le plancher de garantie) et réagit au retour au
// premier plan. Les quatre déclencheurs convergent vers UN seul événement
// interne "recheck demandé", consommé par un seul handler idempotent :
// le push est un hint, la vérité vient toujours du pull.
package watchdog

import (
	"context"
	"sync"
	"time"
)

// Status est la réponse de checkAccess telle qu'elle voyage sur le fil.
// Le package est une bibliothèque cliente : il parle le contrat JSON du
// service, pas ses types internes.
type Status struct {
	Denied                bool       `json:"denied"`
	Origin                string     `json:"origin,omitempty"`     // "self" | "upstream"
	SubReason             string     `json:"sub_reason,omitempty"` // "banned" | "unlinked" | "discharged"
	Reason                string     `json:"reason,omitempty"`
	BannedAt              *time.Time `json:"banned_at,omitempty"`
	UpstreamTherapistName string     `json:"upstream_therapist_name,omitempty"`
}

// Checker rappelle l'autorité de suspension. C'est la SEULE source de
// vérité ; tout le reste du package ne fait que décider QUAND l'appeler.
type Checker interface {
	CheckAccess(ctx context.Context, identityID string) (*Status, error)
}

// Source est un canal de push : il livre des hints content-free.
// Le canal retourné est fermé quand le contexte est annulé.
type Source interface {
	Subscribe(ctx context.Context, identityID string) (<-chan struct{}, error)
}

// SignalChecker est le canal de repli « storage » : une lecture bon
// marché d'un nonce partagé, pollée plus souvent que le checkAccess complet.
type SignalChecker interface {
	Revoked(ctx context.Context, identityID string) (nonce string, ok bool, err error)
}

// Config règle les intervalles et les callbacks. Les zéros prennent des
// défauts raisonnables ; OnDenied est le seul champ vraiment obligatoire.
type Config struct {
	// PollInterval est le plancher de latence : même sans aucun push,
	// un refus est observé au plus tard un intervalle après le commit.
	PollInterval time.Duration
	// SignalInterval est la cadence de lecture du nonce de repli.
	SignalInterval time.Duration
	Sources        []Source
	Signal         SignalChecker
	// OnDenied est appelé UNE fois, au passage en état Denied.
	OnDenied func(*Status)
	// OnError observe les échecs de checkAccess. Un échec ne change
	// jamais l'état : on ne refuse pas une session qu'on ne peut pas vérifier.
	OnError func(error)
}

const (
	defaultPollInterval   = 10 * time.Second
	defaultSignalInterval = 2 * time.Second
)

// Watchdog est la machine à états d'une session :
// Allowed (initial) -> Denied (terminal). Pas de retour en arrière sans
// nouvelle session : une réactivation exige une ré-authentification.
type Watchdog struct {
	identityID string
	checker    Checker
	cfg        Config

	kick   chan struct{} // déclencheurs coalescés
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	started   bool
	denied    bool
	status    *Status
	lastNonce string
}

func New(identityID string, checker Checker, cfg Config) *Watchdog {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.SignalInterval <= 0 {
		cfg.SignalInterval = defaultSignalInterval
	}
	return &Watchdog{
		identityID: identityID,
		checker:    checker,
		cfg:        cfg,
		kick:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Start branche les sources et lance la boucle. Un seul Start par instance.
func (w *Watchdog) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	for _, src := range w.cfg.Sources {
		hints, err := src.Subscribe(ctx, w.identityID)
		if err != nil {
			// Un canal de push indisponible n'est pas fatal : le plancher
			// de polling couvre. On signale et on continue.
			w.reportError(err)
			continue
		}
		go w.forward(ctx, hints)
	}

	go w.run(ctx)
	return nil
}

// Stop démonte tout : timers, abonnements, goroutine. Obligatoire à la
// fin de session (logout) pour ne pas fuiter de listeners.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	cancel, started := w.cancel, w.started
	w.mu.Unlock()
	if !started || cancel == nil {
		return
	}
	cancel()
	<-w.done
}

// NotifyForeground déclenche un re-check immédiat : l'utilisateur revient
// au premier plan et ne doit pas voir un état "autorisé" périmé.
func (w *Watchdog) NotifyForeground() {
	w.requestRecheck()
}

// Denied indique si la session est en état terminal.
func (w *Watchdog) Denied() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.denied
}

// Status retourne le dernier statut autoritaire observé (nil avant le
// premier check réussi).
func (w *Watchdog) Status() *Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// --- BOUCLE INTERNE ---

func (w *Watchdog) run(ctx context.Context) {
	defer close(w.done)

	poll := time.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()

	var signalC <-chan time.Time
	if w.cfg.Signal != nil {
		signal := time.NewTicker(w.cfg.SignalInterval)
		defer signal.Stop()
		signalC = signal.C
	}

	// Check initial : une session qui démarre sur un état déjà refusé
	// ne doit pas attendre le premier tick.
	if w.recheck(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if w.recheck(ctx) {
				return
			}
		case <-w.kick:
			if w.recheck(ctx) {
				return
			}
		case <-signalC:
			if w.signalFired(ctx) {
				if w.recheck(ctx) {
					return
				}
			}
		}
	}
}

// forward convertit les hints d'une source en demandes de re-check.
func (w *Watchdog) forward(ctx context.Context, hints <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-hints:
			if !ok {
				return
			}
			w.requestRecheck()
		}
	}
}

// requestRecheck coalesce : si un re-check est déjà en attente (ou en
// vol, la boucle étant synchrone), les déclencheurs tardifs s'y joignent
// au lieu d'empiler des appels.
func (w *Watchdog) requestRecheck() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// recheck appelle l'autorité. Retourne true si l'état terminal est atteint.
func (w *Watchdog) recheck(ctx context.Context) bool {
	status, err := w.checker.CheckAccess(ctx, w.identityID)
	if err != nil {
		// On garde l'état précédent et on retentera au prochain tick :
		// le refus peut être RETARDÉ, jamais inventé sur une erreur de lecture.
		w.reportError(err)
		return false
	}

	w.mu.Lock()
	w.status = status
	if !status.Denied {
		w.mu.Unlock()
		return false
	}
	w.denied = true
	w.mu.Unlock()

	if w.cfg.OnDenied != nil {
		w.cfg.OnDenied(status)
	}
	// Terminal : on coupe tout, la session est morte. Une réactivation
	// éventuelle passera par une nouvelle authentification.
	if w.cancel != nil {
		w.cancel()
	}
	return true
}

// signalFired lit le nonce de repli ; un nonce inédit vaut hint.
func (w *Watchdog) signalFired(ctx context.Context) bool {
	nonce, ok, err := w.cfg.Signal.Revoked(ctx, w.identityID)
	if err != nil || !ok {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if nonce == w.lastNonce {
		return false
	}
	w.lastNonce = nonce
	return true
}

func (w *Watchdog) reportError(err error) {
	if w.cfg.OnError != nil {
		w.cfg.OnError(err)
	}
}
