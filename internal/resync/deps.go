package resync

import (
	"time"

	"github.com/sirkon/repinit/internal/catalog"
	"github.com/sirkon/repinit/internal/ledger"
	"github.com/sirkon/repinit/internal/logging"
	"github.com/sirkon/repinit/internal/pagelock"
	"github.com/sirkon/repinit/internal/pagexfer"
	"github.com/sirkon/repinit/internal/receipts"
	"github.com/sirkon/repinit/internal/transport"
	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/wire"
)

//go:generate mockgen -source=deps.go -destination=internal/mocks/mocks.go -package=mocks -mock_names=Log=LogMock,Sender=SenderMock,LogShipper=LogShipperMock

// Log лог узла.
type Log interface {
	Flush() error
	TruncateAndReset(first uint32) error
	CurrentPosition() types.LSN
	ServeFrom() (types.LSN, error)
	VersionAt(pos types.LSN) (uint32, error)
	ReadRange(from, to types.LSN, fn func(pos types.LSN, data []byte) error) error
}

// Sender отправка сообщений другим узлам.
type Sender interface {
	Send(to transport.PeerID, msg wire.Message) error
}

// LogShipper передача записей лога узлу запросившему их после
// повторной инициализации.
type LogShipper interface {
	ShipLog(to transport.PeerID, pos types.LSN, data []byte) error
}

// Config настройки координатора.
type Config struct {
	// Gaps интервалы дозапросов страниц и списка файлов.
	Gaps pagexfer.Gaps
	// Serve настройки обслуживания запросов страниц.
	Serve pagexfer.ServerConfig
	// Now источник времени, по умолчанию time.Now.
	Now func() time.Time
}

// Deps зависимости координатора. Shipper может отсутствовать.
type Deps struct {
	Catalog  *catalog.Catalog
	Ledger   *ledger.Ledger
	Log      Log
	Sender   Sender
	Receipts receipts.Ledger
	Locks    *pagelock.Table
	Logger   logging.Logger
	Shipper  LogShipper
}
