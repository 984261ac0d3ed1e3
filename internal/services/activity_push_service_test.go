package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ticket-backend/internal/events"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcernsFiltersByWallet(t *testing.T) {
	event := events.Event{Type: events.TicketSold, Wallets: []string{alice, bob}}

	assert.True(t, concerns(event, ""))
	assert.True(t, concerns(event, "0x"+strings.ToUpper(bob[2:])))
	assert.False(t, concerns(event, carol))
}

func TestActivityPushDeliversEventsForWallet(t *testing.T) {
	push := NewActivityPushService()
	defer push.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		push.HandleWebSocket(w, r, r.URL.Query().Get("wallet"))
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?wallet=" + bob
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool { return push.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, push.Publish(ctx, events.Event{Type: events.TicketMinted, TokenID: 1, Wallets: []string{alice}}))
	require.NoError(t, push.Publish(ctx, events.Event{Type: events.TicketSold, TokenID: 2, Wallets: []string{alice, bob}}))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var msg ActivityMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, string(events.TicketSold), msg.Type)
	assert.Equal(t, uint64(2), msg.Event.TokenID)
	assert.NotEmpty(t, msg.MessageID)

	client.Close()
	assert.Eventually(t, func() bool { return push.ActiveConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
}
