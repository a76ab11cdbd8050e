package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sirkon/repinit/internal/logging"
	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/wire"
)

func TestUDP(t *testing.T) {
	a, err := ListenUDP(UDPConfig{Self: 1, Listen: "127.0.0.1:0", Workers: 2}, logging.Nop())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	b, err := ListenUDP(UDPConfig{Self: 2, Listen: "127.0.0.1:0", Workers: 2}, logging.Nop())
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	require.NoError(t, a.AddPeer(2, b.Addr().String()))
	require.NoError(t, b.AddPeer(1, a.Addr().String()))
	require.Error(t, a.AddPeer(Broadcast, b.Addr().String()))

	got := make(chan delivery, 4)
	b.Start(func(from PeerID, msg wire.Message) {
		got <- delivery{From: from, Msg: msg}
	})
	a.Start(func(from PeerID, msg wire.Message) {
		t.Errorf("unexpected message from %s", from)
	})

	page := &wire.Page{
		FileIndex: 3,
		Number:    5,
		Order:     types.NativeOrder(),
		Payload:   []byte("page payload"),
	}
	require.NoError(t, a.Send(2, page))
	require.Equal(t, delivery{From: 1, Msg: page}, receive(t, got))

	require.NoError(t, a.Send(Anywhere, &wire.InventoryRequest{}))
	require.Equal(t, delivery{From: 1, Msg: &wire.InventoryRequest{}}, receive(t, got))

	require.ErrorIs(t, a.Send(7, page), ErrUnknownPeer)

	huge := &wire.BulkPages{}
	for i := 0; i < 3; i++ {
		huge.Pages = append(huge.Pages, wire.Page{
			FileIndex: 1,
			Number:    uint32(i),
			Order:     types.NativeOrder(),
			Payload:   make([]byte, wire.MaxPageSize),
		})
	}
	require.Error(t, a.Send(2, huge))

	largest := &wire.BulkPages{Pages: []wire.Page{{
		FileIndex: 1<<32 - 1,
		Number:    1<<32 - 1,
		Order:     types.NativeOrder(),
		Payload:   make([]byte, MaxUDPPageSize),
	}}}
	require.NoError(t, a.Send(2, largest))
	require.Equal(t, delivery{From: 1, Msg: largest}, receive(t, got))

	largestPage := &largest.Pages[0]
	require.NoError(t, a.Send(2, largestPage))
	require.Equal(t, delivery{From: 1, Msg: largestPage}, receive(t, got))
}

func receive(t *testing.T, ch <-chan delivery) delivery {
	t.Helper()

	select {
	case d := <-ch:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return delivery{}
	}
}
