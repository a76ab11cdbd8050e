package transport

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/sirkon/repinit/internal/logging"
	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/wire"
)

func TestRedisBus(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	newBus := func(self PeerID) *RedisBus {
		bus, err := NewRedisBus(RedisConfig{
			URL:     "redis://" + mr.Addr(),
			Prefix:  "test",
			Self:    self,
			Workers: 2,
		}, logging.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = bus.Close() })
		return bus
	}

	provider := newBus(1)
	client := newBus(2)

	toProvider := make(chan delivery, 4)
	toClient := make(chan delivery, 4)
	require.NoError(t, provider.Start(ctx, func(from PeerID, msg wire.Message) {
		toProvider <- delivery{From: from, Msg: msg}
	}))
	require.NoError(t, client.Start(ctx, func(from PeerID, msg wire.Message) {
		toClient <- delivery{From: from, Msg: msg}
	}))

	require.NoError(t, client.Send(Broadcast, &wire.InventoryRequest{}))
	require.Equal(t, delivery{From: 2, Msg: &wire.InventoryRequest{}}, receive(t, toProvider))

	reply := &wire.InventoryReply{
		Start:      types.NewLSN(1, 16),
		Current:    types.NewLSN(2, 100),
		LogVersion: 1,
		Files: wire.FileList{
			{
				ID:       types.NewFileID(),
				Kind:     wire.DBKindBtree,
				PageSize: 512,
				MaxPage:  3,
				Order:    types.NativeOrder(),
				Name:     []byte("a.db"),
			},
		},
	}
	require.NoError(t, provider.Send(2, reply))
	require.Equal(t, delivery{From: 1, Msg: reply}, receive(t, toClient))

	// Сообщения самому себе через общий канал отбрасываются.
	require.NoError(t, provider.Send(Anywhere, &wire.PageMore{FileIndex: 0, Page: 3}))
	require.Equal(t, delivery{From: 1, Msg: &wire.PageMore{FileIndex: 0, Page: 3}}, receive(t, toClient))
	require.Empty(t, toProvider)
}

func TestRedisBusConfig(t *testing.T) {
	_, err := NewRedisBus(RedisConfig{}, logging.Nop())
	require.Error(t, err)

	_, err = NewRedisBus(RedisConfig{URL: "http://nowhere"}, logging.Nop())
	require.Error(t, err)
}
