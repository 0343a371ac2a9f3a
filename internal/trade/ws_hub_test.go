package trade_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SgtSwagrid/swagbets/internal/trade"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestWSHub_Broadcast(t *testing.T) {
	hub := trade.NewWSHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	hub.Broadcast(trade.WSMessage{
		Type:          "trade_executed",
		PropositionID: "p1",
		OutcomeID:     "o1",
		Kind:          "direct",
		Price:         55,
		Quantity:      10,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg trade.WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.Type != "trade_executed" || msg.Price != 55 || msg.Quantity != 10 {
		t.Errorf("message = %+v, want trade_executed 10 @ 55", msg)
	}
}

func TestWSHub_PrunesDeadClientsOnBroadcast(t *testing.T) {
	hub := trade.NewWSHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	stays := dialWS(t, srv)
	defer stays.Close()
	dies := dialWS(t, srv)

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("clients never registered, count = %d", hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Broadcasting over a closed connection drops that client without
	// disturbing the rest.
	dies.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("dead client never pruned, count = %d", hub.ClientCount())
		}
		hub.Broadcast(trade.WSMessage{Type: "trade_executed", PropositionID: "p1"})
		time.Sleep(10 * time.Millisecond)
	}

	stays.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg trade.WSMessage
	if err := stays.ReadJSON(&msg); err != nil {
		t.Fatalf("surviving client stopped receiving: %v", err)
	}
}
