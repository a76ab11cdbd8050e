package transport

import (
	"bytes"
	"math/rand/v2"
	"net"
	"sync"

	"github.com/sirkon/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/sirkon/repinit/internal/logging"
	"github.com/sirkon/repinit/internal/wire"
)

const (
	// MaxDatagramSize наибольшая полезная нагрузка датаграммы UDP поверх IPv4.
	MaxDatagramSize = 65507

	// pageOverhead запас на конверт, код сообщения и заголовок страницы
	// в том числе внутри пачки из одной страницы.
	pageOverhead = 64

	// MaxUDPPageSize наибольший размер страницы, которая помещается
	// в одну датаграмму.
	MaxUDPPageSize = MaxDatagramSize - pageOverhead
)

// UDPConfig настройки транспорта поверх UDP.
type UDPConfig struct {
	Self    PeerID
	Listen  string
	Peers   map[PeerID]string
	Workers int
}

// ListenUDP открытие сокета и подготовка адресов узлов.
func ListenUDP(cfg UDPConfig, logger logging.Logger) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, errors.Wrap(err, "resolve listen address").Str("listen", cfg.Listen)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, errors.Wrap(err, "listen").Str("listen", cfg.Listen)
	}

	res := &UDP{
		self:    cfg.Self,
		conn:    conn,
		workers: cfg.Workers,
		logger:  logger,
		peers:   map[PeerID]*net.UDPAddr{},
	}
	for id, addr := range cfg.Peers {
		if err := res.AddPeer(id, addr); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	return res, nil
}

// UDP транспорт на датаграммах. Каждое сообщение занимает одну
// датаграмму с конвертом в msgpack.
type UDP struct {
	self    PeerID
	conn    *net.UDPConn
	workers int
	logger  logging.Logger

	lock  sync.RWMutex
	peers map[PeerID]*net.UDPAddr

	pool   *pool
	reader sync.WaitGroup
}

// Addr локальный адрес сокета.
func (u *UDP) Addr() net.Addr {
	return u.conn.LocalAddr()
}

// AddPeer добавление или замена адреса узла id.
func (u *UDP) AddPeer(id PeerID, addr string) error {
	if id == Broadcast || id == Anywhere {
		return errors.New("reserved peer id").Stg("peer", id)
	}

	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return errors.Wrap(err, "resolve peer address").Stg("peer", id).Str("addr", addr)
	}

	u.lock.Lock()
	defer u.lock.Unlock()

	u.peers[id] = raddr
	return nil
}

// Start запуск чтения датаграмм, входящие сообщения передаются h.
func (u *UDP) Start(h Handler) {
	u.pool = newPool(u.workers)
	u.reader.Add(1)
	go u.read(h)
}

// Send для реализации Sender.
func (u *UDP) Send(to PeerID, msg wire.Message) error {
	data, err := seal(u.self, to, msg)
	if err != nil {
		return err
	}
	if len(data) > MaxDatagramSize {
		return errors.New("message does not fit into datagram").
			Int("message-length", len(data)).
			Int("datagram-size-limit", MaxDatagramSize)
	}

	targets, err := u.targets(to)
	if err != nil {
		return err
	}

	for _, addr := range targets {
		if _, err := u.conn.WriteToUDP(data, addr); err != nil {
			return errors.Wrap(err, "write datagram").Str("addr", addr.String())
		}
	}

	return nil
}

// Close закрытие сокета и ожидание обработчиков.
func (u *UDP) Close() error {
	err := u.conn.Close()
	u.reader.Wait()
	if u.pool != nil {
		u.pool.close()
	}

	if err != nil {
		return errors.Wrap(err, "close socket")
	}

	return nil
}

func (u *UDP) targets(to PeerID) ([]*net.UDPAddr, error) {
	u.lock.RLock()
	defer u.lock.RUnlock()

	switch to {
	case Broadcast, Anywhere:
		ids := maps.Keys(u.peers)
		slices.Sort(ids)

		var res []*net.UDPAddr
		for _, id := range ids {
			if id != u.self {
				res = append(res, u.peers[id])
			}
		}
		if to == Anywhere && len(res) > 0 {
			i := rand.IntN(len(res))
			res = res[i : i+1]
		}

		return res, nil
	default:
		addr, ok := u.peers[to]
		if !ok {
			return nil, errors.Wrap(ErrUnknownPeer, "look for recipient address").Stg("peer", to)
		}

		return []*net.UDPAddr{addr}, nil
	}
}

func (u *UDP) read(h Handler) {
	defer u.reader.Done()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			u.logger.ProtocolError(uint32(u.self), errors.Wrap(err, "read datagram"))
			continue
		}

		// Сообщение может ссылаться на данные датаграммы, буфер же переиспользуется.
		env, msg, err := unseal(bytes.Clone(buf[:n]))
		if err != nil {
			u.logger.ProtocolError(uint32(env.From), err)
			continue
		}
		if !addressed(env, u.self) {
			continue
		}

		u.pool.submit(func() {
			h(env.From, msg)
		})
	}
}
