package propagation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	calls   int
	lastIDs []string
	err     error
}

func (f *fakeBroker) PublishAccessRevoked(_ context.Context, ids []string, _ string) error {
	f.calls++
	f.lastIDs = ids
	return f.err
}

func TestBusFansOutToAllChannels(t *testing.T) {
	hub := NewHub()
	broker := &fakeBroker{}
	bus := NewBus(hub, broker, nil)

	ch, cancel := hub.Subscribe("p-1")
	defer cancel()

	bus.Publish(context.Background(), []string{"p-1"}, "suspended")

	require.Equal(t, "suspended", <-ch)
	assert.Equal(t, 1, broker.calls)
	assert.Equal(t, []string{"p-1"}, broker.lastIDs)
}

func TestBusBrokerFailureDoesNotStopOtherChannels(t *testing.T) {
	hub := NewHub()
	broker := &fakeBroker{err: errors.New("nats down")}
	bus := NewBus(hub, broker, nil)

	ch, cancel := hub.Subscribe("p-1")
	defer cancel()

	// Le hub a déjà livré AVANT l'échec NATS, et Publish ne panique ni ne
	// remonte d'erreur : la propagation est best-effort de bout en bout.
	bus.Publish(context.Background(), []string{"p-1"}, "suspended")
	assert.Equal(t, "suspended", <-ch)
}

func TestBusToleratesNilChannels(t *testing.T) {
	bus := NewBus(nil, nil, nil)
	bus.Publish(context.Background(), []string{"p-1"}, "suspended")
}
