// Package transport доставка сообщений повторной инициализации между
// узлами. Отправка не гарантирует доставку: потерянные сообщения
// восполняются дозапросами на стороне клиента.
package transport

import (
	"math"
	"strconv"

	"github.com/sirkon/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/sirkon/repinit/internal/reperr"
	"github.com/sirkon/repinit/internal/wire"
)

// PeerID идентификатор узла.
type PeerID uint32

const (
	// Broadcast рассылка всем узлам кроме отправителя.
	Broadcast PeerID = math.MaxUint32

	// Anywhere доставка любому отвечающему узлу кроме отправителя.
	Anywhere PeerID = math.MaxUint32 - 1
)

func (id PeerID) String() string {
	switch id {
	case Broadcast:
		return "broadcast"
	case Anywhere:
		return "anywhere"
	default:
		return strconv.FormatUint(uint64(id), 10)
	}
}

const (
	// ErrUnknownPeer узел получателя неизвестен.
	ErrUnknownPeer errors.Const = "unknown peer"

	// ErrClosed транспорт закрыт.
	ErrClosed errors.Const = "transport is closed"
)

// Handler обработчик входящего сообщения. Вызывается из пула
// обработчиков, вызовы могут идти параллельно.
type Handler func(from PeerID, msg wire.Message)

// Sender отправка сообщения узлу to.
type Sender interface {
	Send(to PeerID, msg wire.Message) error
}

// envelope конверт сообщения в датаграмме или публикации.
type envelope struct {
	From PeerID `msgpack:"from"`
	To   PeerID `msgpack:"to"`
	Body []byte `msgpack:"body"`
}

func seal(from, to PeerID, msg wire.Message) ([]byte, error) {
	body, err := wire.Encode(msg)
	if err != nil {
		return nil, errors.Wrap(err, "encode message")
	}

	data, err := msgpack.Marshal(&envelope{
		From: from,
		To:   to,
		Body: body,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode envelope")
	}

	return data, nil
}

func unseal(data []byte) (envelope, wire.Message, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return env, nil, reperr.Protocol(errors.Wrap(err, "decode envelope"))
	}

	msg, err := wire.Decode(env.Body)
	if err != nil {
		return env, nil, errors.Wrap(err, "decode message").Stg("from", env.From)
	}

	return env, msg, nil
}

// addressed проверка, что конверт адресован узлу self.
func addressed(env envelope, self PeerID) bool {
	if env.From == self {
		return false
	}

	return env.To == self || env.To == Broadcast || env.To == Anywhere
}
