package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Un logout pendant qu'une révocation arrive : le teardown ferme le
// canal alors qu'un callback de subscription est encore en vol. Le gate
// doit absorber ça sans paniquer, sur des milliers de cycles.
func TestHintGateSendCloseRace(t *testing.T) {
	for i := 0; i < 5000; i++ {
		gate := newHintGate()

		var wg sync.WaitGroup
		for s := 0; s < 4; s++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					gate.send()
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			gate.close()
		}()
		wg.Wait()

		// Le canal finit fermé, drainé d'au plus un hint coalescé.
		select {
		case _, ok := <-gate.ch:
			if ok {
				_, ok = <-gate.ch
				assert.False(t, ok)
			}
		default:
			t.Fatal("gate channel should be closed")
		}
	}
}

func TestHintGateSendAfterCloseIsNoop(t *testing.T) {
	gate := newHintGate()
	gate.close()
	gate.send() // ne doit ni paniquer ni réécrire
	gate.close()

	_, ok := <-gate.ch
	assert.False(t, ok)
}

func TestHintGateCoalesces(t *testing.T) {
	gate := newHintGate()
	gate.send()
	gate.send()
	gate.send()

	<-gate.ch
	select {
	case <-gate.ch:
		t.Fatal("expected a single coalesced hint")
	default:
	}
}

// --- HUB SOURCE ---

// fakeHinter imite le hub in-process du service : canal bufferisé à 1,
// désabonnement comptabilisé.
type fakeHinter struct {
	mu           sync.Mutex
	ch           chan string
	unsubscribed bool
}

func newFakeHinter() *fakeHinter { return &fakeHinter{ch: make(chan string, 1)} }

func (f *fakeHinter) Subscribe(_ string) (<-chan string, func()) {
	return f.ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubscribed = true
	}
}

func (f *fakeHinter) isUnsubscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}

func TestHubSourceForwardsHints(t *testing.T) {
	hinter := newFakeHinter()
	source := NewHubSource(hinter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hints, err := source.Subscribe(ctx, "p-1")
	require.NoError(t, err)

	hinter.ch <- "suspended"
	select {
	case <-hints:
	case <-time.After(2 * time.Second):
		t.Fatal("hint not forwarded from hub")
	}
}

func TestHubSourceCancelUnsubscribesAndCloses(t *testing.T) {
	hinter := newFakeHinter()
	source := NewHubSource(hinter)

	ctx, cancel := context.WithCancel(context.Background())
	hints, err := source.Subscribe(ctx, "p-1")
	require.NoError(t, err)

	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-hints:
			if !ok {
				assert.True(t, hinter.isUnsubscribed())
				return
			}
		case <-deadline:
			t.Fatal("hint channel not closed after cancel")
		}
	}
}

func TestHubSourceUpstreamCloseStopsForwarding(t *testing.T) {
	hinter := newFakeHinter()
	source := NewHubSource(hinter)

	hints, err := source.Subscribe(context.Background(), "p-1")
	require.NoError(t, err)

	close(hinter.ch)
	select {
	case _, ok := <-hints:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("hint channel not closed after upstream close")
	}
}

// Le watchdog complet branché sur la source hub : le chemin le plus
// court entre un Broadcast et un re-check.
func TestWatchdogWithHubSource(t *testing.T) {
	checker := &fakeChecker{status: allowed()}
	hinter := newFakeHinter()
	w := New("p-1", checker, Config{
		PollInterval: time.Hour,
		Sources:      []Source{NewHubSource(hinter)},
	})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	waitFor(t, func() bool { return checker.callCount() >= 1 }, "initial check missing")

	checker.set(denied(), nil)
	hinter.ch <- "suspended"
	waitFor(t, w.Denied, "hub hint did not trigger a recheck")
}
