package resync

// Phase фаза повторной инициализации.
type Phase int

const (
	// PhaseIdle повторная инициализация не идёт.
	PhaseIdle Phase = iota
	// PhaseAwaitingFileList ожидание списка файлов от поставщика.
	PhaseAwaitingFileList
	// PhaseRemovingOldState удаление локальных баз и сброс лога.
	PhaseRemovingOldState
	// PhaseFetchingFile получение страниц текущего файла.
	PhaseFetchingFile
	// PhaseAwaitingLogReplay все файлы получены, ожидается накат лога.
	PhaseAwaitingLogReplay
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingFileList:
		return "awaiting-file-list"
	case PhaseRemovingOldState:
		return "removing-old-state"
	case PhaseFetchingFile:
		return "fetching-file"
	case PhaseAwaitingLogReplay:
		return "awaiting-log-replay"
	default:
		return "unknown"
	}
}
