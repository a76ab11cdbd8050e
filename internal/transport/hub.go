package transport

import (
	"bytes"
	"math/rand/v2"
	"sync"

	"github.com/sirkon/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/sirkon/repinit/internal/logging"
	"github.com/sirkon/repinit/internal/wire"
)

// DropFunc фильтр сообщений: true означает потерю сообщения.
type DropFunc func(from, to PeerID, msg wire.Message) bool

// NewHub сеть узлов внутри процесса с workers обработчиками.
func NewHub(workers int, logger logging.Logger) *Hub {
	return &Hub{
		pool:     newPool(workers),
		logger:   logger,
		peers:    map[PeerID]Handler{},
		isolated: map[PeerID]bool{},
	}
}

// Hub сеть узлов внутри процесса. Сообщения проходят через кодек,
// так что получатель всегда видит собственную копию.
type Hub struct {
	pool   *pool
	logger logging.Logger

	lock     sync.RWMutex
	peers    map[PeerID]Handler
	isolated map[PeerID]bool
	drop     DropFunc
}

// Join подключение узла id.
func (h *Hub) Join(id PeerID, handler Handler) *Endpoint {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.peers[id] = handler
	return &Endpoint{
		hub: h,
		id:  id,
	}
}

// Leave отключение узла id.
func (h *Hub) Leave(id PeerID) {
	h.lock.Lock()
	defer h.lock.Unlock()

	delete(h.peers, id)
	delete(h.isolated, id)
}

// SetDrop установка фильтра потерь. nil снимает фильтр.
func (h *Hub) SetDrop(drop DropFunc) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.drop = drop
}

// Isolate отрезать узел от сети или вернуть его обратно.
func (h *Hub) Isolate(id PeerID, isolated bool) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if isolated {
		h.isolated[id] = true
		return
	}
	delete(h.isolated, id)
}

// Wait ожидание обработки всех отправленных сообщений.
func (h *Hub) Wait() {
	h.pool.wait()
}

// Close остановка обработчиков.
func (h *Hub) Close() {
	h.pool.close()
}

func (h *Hub) send(from, to PeerID, msg wire.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}

	h.lock.RLock()
	defer h.lock.RUnlock()

	var targets []PeerID
	switch to {
	case Broadcast:
		targets = h.others(from)
	case Anywhere:
		others := h.others(from)
		if len(others) > 0 {
			targets = append(targets, others[rand.IntN(len(others))])
		}
	default:
		if _, ok := h.peers[to]; !ok {
			return errors.Wrap(ErrUnknownPeer, "look for recipient").Stg("peer", to)
		}
		targets = append(targets, to)
	}

	for _, target := range targets {
		if h.isolated[from] || h.isolated[target] {
			continue
		}
		if h.drop != nil && h.drop(from, target, msg) {
			continue
		}

		handler := h.peers[target]
		own := bytes.Clone(data)
		if !h.pool.submit(func() { h.deliver(from, handler, own) }) {
			return ErrClosed
		}
	}

	return nil
}

func (h *Hub) deliver(from PeerID, handler Handler, data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		h.logger.ProtocolError(uint32(from), err)
		return
	}

	handler(from, msg)
}

func (h *Hub) others(self PeerID) []PeerID {
	ids := maps.Keys(h.peers)
	slices.Sort(ids)

	res := ids[:0]
	for _, id := range ids {
		if id != self {
			res = append(res, id)
		}
	}

	return res
}

// Endpoint подключение узла к Hub.
type Endpoint struct {
	hub *Hub
	id  PeerID
}

// ID идентификатор узла.
func (e *Endpoint) ID() PeerID {
	return e.id
}

// Send для реализации Sender.
func (e *Endpoint) Send(to PeerID, msg wire.Message) error {
	return e.hub.send(e.id, to, msg)
}
