package wire

import (
	"fmt"

	"github.com/sirkon/repinit/internal/types"
)

// Kind код вида сообщения.
type Kind uint8

const (
	KindInventoryRequest Kind = iota + 1
	KindInventoryReply
	KindPageRequest
	KindPage
	KindPageMissing
	KindPageMore
	KindBulkPages
	KindLogRangeRequest
)

func (k Kind) String() string {
	switch k {
	case KindInventoryRequest:
		return "inventory-request"
	case KindInventoryReply:
		return "inventory-reply"
	case KindPageRequest:
		return "page-request"
	case KindPage:
		return "page"
	case KindPageMissing:
		return "page-missing"
	case KindPageMore:
		return "page-more"
	case KindBulkPages:
		return "bulk-pages"
	case KindLogRangeRequest:
		return "log-range-request"
	default:
		return fmt.Sprintf("unknown message kind %d", k)
	}
}

// Message закрытое множество сообщений протокола повторной инициализации.
// Реализации есть только в этом пакете.
type Message interface {
	Kind() Kind
	isMessage()
}

// InventoryRequest запрос списка файлов у поставщика.
type InventoryRequest struct{}

// InventoryReply ответ поставщика со списком файлов.
type InventoryReply struct {
	Start      types.LSN // С этой позиции поставщик может отдать лог.
	Current    types.LSN // Позиция лога поставщика на момент ответа.
	LogVersion uint32    // Версия формата лога на позиции Start.
	Files      FileList
}

// PageRequest запрос диапазона страниц [Page, MaxPage] файла.
type PageRequest struct {
	File    FileDescriptor
	Page    uint32
	MaxPage uint32
	AnyPeer bool // Запрос может обслужить любой отвечающий узел.
}

// PageMissing страницы больше не существует у поставщика.
type PageMissing struct {
	FileIndex uint32
	Page      uint32
}

// PageMore поставщик намеренно оборвал ответ на этой странице.
type PageMore struct {
	FileIndex uint32
	Page      uint32
}

// BulkPages пачка страниц в одном сообщении.
type BulkPages struct {
	Pages []Page
}

// LogRangeRequest запрос записей лога начиная с From и до To не включая.
type LogRangeRequest struct {
	From types.LSN
	To   types.LSN
}

// Kind для реализации Message.
func (*InventoryRequest) Kind() Kind { return KindInventoryRequest }

// Kind для реализации Message.
func (*InventoryReply) Kind() Kind { return KindInventoryReply }

// Kind для реализации Message.
func (*PageRequest) Kind() Kind { return KindPageRequest }

// Kind для реализации Message.
func (*Page) Kind() Kind { return KindPage }

// Kind для реализации Message.
func (*PageMissing) Kind() Kind { return KindPageMissing }

// Kind для реализации Message.
func (*PageMore) Kind() Kind { return KindPageMore }

// Kind для реализации Message.
func (*BulkPages) Kind() Kind { return KindBulkPages }

// Kind для реализации Message.
func (*LogRangeRequest) Kind() Kind { return KindLogRangeRequest }

func (*InventoryRequest) isMessage() {}
func (*InventoryReply) isMessage()   {}
func (*PageRequest) isMessage()      {}
func (*Page) isMessage()             {}
func (*PageMissing) isMessage()      {}
func (*PageMore) isMessage()         {}
func (*BulkPages) isMessage()        {}
func (*LogRangeRequest) isMessage()  {}
