package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSessionStore_LoadMissingKeys(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisSessionStore(client, "tickets:wallet", time.Second)

	mock.ExpectGet("tickets:wallet:wallet_manual_disconnect").RedisNil()
	mock.ExpectGet("tickets:wallet:wallet_user_connected").RedisNil()

	hints, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Hints{}, hints)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSessionStore_SaveAndLoad(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisSessionStore(client, "tickets:wallet", time.Second)

	mock.ExpectSet("tickets:wallet:wallet_manual_disconnect", "true", 0).SetVal("OK")
	mock.ExpectSet("tickets:wallet:wallet_user_connected", "false", 0).SetVal("OK")
	require.NoError(t, store.Save(context.Background(), Hints{ManualDisconnect: true}))

	mock.ExpectGet("tickets:wallet:wallet_manual_disconnect").SetVal("true")
	mock.ExpectGet("tickets:wallet:wallet_user_connected").SetVal("false")
	hints, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Hints{ManualDisconnect: true}, hints)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSessionStore_LoadError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisSessionStore(client, "", 0)

	mock.ExpectGet("wallet:wallet_manual_disconnect").SetErr(errors.New("connection refused"))

	_, err := store.Load(context.Background())
	assert.Error(t, err)
}

func TestManualDisconnectPersistedInRedisBlocksAutoReconnect(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisSessionStore(client, "wallet", time.Second)
	p := connectedProvider()

	mock.ExpectGet("wallet:wallet_manual_disconnect").SetVal("true")
	mock.ExpectGet("wallet:wallet_user_connected").SetVal("false")

	s := NewSession(p, store)
	snap, err := s.AutoReconnect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateManualDisconnect, snap.State)
	assert.Empty(t, p.methods())
	assert.NoError(t, mock.ExpectationsWereMet())
}
