package resync

import (
	"time"

	"github.com/google/uuid"

	"github.com/sirkon/repinit/internal/pagexfer"
	"github.com/sirkon/repinit/internal/transport"
	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/wire"
)

// Stats итоги попытки повторной инициализации.
type Stats struct {
	Files      int
	Pages      uint64
	Missing    uint64
	Duplicates uint64
	Requests   uint64
	Bulks      uint64
}

// session состояние идущей повторной инициализации. Меняется только
// под блокировкой сессии координатора.
type session struct {
	id       uuid.UUID
	provider transport.PeerID
	phase    Phase

	files      wire.FileList
	current    int
	start      types.LSN
	end        types.LSN
	logVersion uint32

	tracker *pagexfer.Tracker
	wrapped bool // Для текущей очереди уже запрошен перенесённый диапазон.

	lastInventory time.Time
	inventoryGap  time.Duration

	stats Stats
}

// Status снимок состояния координатора.
type Status struct {
	Attempt      uuid.UUID
	Phase        Phase
	Provider     transport.PeerID
	File         int // Индекс текущего файла или -1.
	Files        int
	Ready        uint32
	Waiting      uint32
	HasWaiting   bool
	MaxRequested uint32
	Start        types.LSN
	End          types.LSN
	Stats        Stats
}

func (s *session) status() Status {
	res := Status{
		Attempt:  s.id,
		Phase:    s.phase,
		Provider: s.provider,
		File:     -1,
		Files:    len(s.files),
		Start:    s.start,
		End:      s.end,
		Stats:    s.stats,
	}

	if s.tracker != nil {
		res.File = s.current
		res.Ready = s.tracker.Ready()
		res.Waiting, res.HasWaiting = s.tracker.Waiting()
		res.MaxRequested = s.tracker.MaxRequested()
	}

	return res
}

// outbox сообщения собранные под блокировкой и отправляемые после неё.
type outbox []outgoing

type outgoing struct {
	to  transport.PeerID
	msg wire.Message
}

func (o *outbox) add(to transport.PeerID, msg wire.Message) {
	*o = append(*o, outgoing{
		to:  to,
		msg: msg,
	})
}
