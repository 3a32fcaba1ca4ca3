package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MiguelitoPsi/care-lifecycle-service/internal/adapters/secondary/propagation"
)

func TestStreamDeliversHints(t *testing.T) {
	hub := propagation.NewHub()
	srv, _ := newStreamServer(t, hub)

	conn := dialStream(t, srv, "patient-1", "tok-patient-1")
	defer conn.Close()

	// Laisse au handler le temps de s'abonner avant de broadcaster.
	waitForSubscriber(t, hub, "patient-1")
	hub.Broadcast([]string{"patient-1"}, "suspended")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "recheck", msg.Type)
	assert.Equal(t, "suspended", msg.Reason)
}

func TestStreamIgnoresOtherIdentities(t *testing.T) {
	hub := propagation.NewHub()
	srv, _ := newStreamServer(t, hub)

	conn := dialStream(t, srv, "patient-1", "tok-patient-1")
	defer conn.Close()

	waitForSubscriber(t, hub, "patient-1")
	hub.Broadcast([]string{"someone-else"}, "suspended")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var msg hintMessage
	err := conn.ReadJSON(&msg)
	assert.Error(t, err, "no hint expected for another identity")
}

func TestStreamRequiresAuth(t *testing.T) {
	hub := propagation.NewHub()
	srv, _ := newStreamServer(t, hub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/access/patient-1/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// --- HELPERS ---

func newStreamServer(t *testing.T, hub *propagation.Hub) (*httptest.Server, *stubCare) {
	t.Helper()
	care := newStubCare()
	gate := &stubGate{care: care}
	srv := httptest.NewServer(NewRouter(NewHandler(care, gate), NewStreamHandler(hub), gate))
	t.Cleanup(srv.Close)
	return srv, care
}

func dialStream(t *testing.T, srv *httptest.Server, identityID, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/access/" + identityID + "/stream"
	header := http.Header{"Authorization": {"Bearer " + token}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn
}

func waitForSubscriber(t *testing.T, hub *propagation.Hub, identityID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.HasSubscribers(identityID) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("stream never subscribed to the hub")
}
