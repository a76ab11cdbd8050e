package logio

import (
	"encoding/binary"
	"os"

	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/types"
)

// Checkpoint позиция последней контрольной точки. Второе значение
// false если контрольной точки нет.
func (l *Log) Checkpoint() (types.LSN, bool, error) {
	data, err := os.ReadFile(l.dir.Join(CheckpointName))
	if err != nil {
		if os.IsNotExist(err) {
			return types.LSN{}, false, nil
		}

		return types.LSN{}, false, errors.Wrap(err, "read checkpoint file")
	}

	if len(data) != checkpointSize || binary.LittleEndian.Uint32(data[:4]) != fileMagic {
		return types.LSN{}, false, errors.Wrap(ErrLogIntegrityCompromised, "invalid checkpoint file").
			Int("checkpoint-file-size", len(data))
	}

	return types.LSNDecode(data[4:], binary.LittleEndian), true, nil
}

// SetCheckpoint сохранение позиции контрольной точки. Пишется во
// временный файл который после fsync переименовывается в основной.
func (l *Log) SetCheckpoint(pos types.LSN) error {
	first := l.FirstPosition()
	if types.LSNLess(pos, first) || types.LSNLess(l.CurrentPosition(), pos) {
		return errors.Wrap(ErrPositionOutOfRange, "check checkpoint position").
			Stg("checkpoint", pos).
			Stg("first-position", first)
	}

	var buf [checkpointSize]byte
	binary.LittleEndian.PutUint32(buf[:4], fileMagic)
	types.LSNEncode(buf[4:], binary.LittleEndian, pos)

	tmpName := l.dir.Join(CheckpointName + ".tmp")
	file, err := os.OpenFile(tmpName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "create temporary checkpoint file")
	}

	if _, err := file.Write(buf[:]); err != nil {
		_ = file.Close()
		return errors.Wrap(err, "write checkpoint")
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()
		return errors.Wrap(err, "sync temporary checkpoint file")
	}

	if err := file.Close(); err != nil {
		return errors.Wrap(err, "close temporary checkpoint file")
	}

	if err := os.Rename(tmpName, l.dir.Join(CheckpointName)); err != nil {
		return errors.Wrap(err, "rename temporary checkpoint file")
	}

	if err := l.dir.Sync(); err != nil {
		return errors.Wrap(err, "sync log directory")
	}

	return nil
}

// ServeFrom наиболее ранняя позиция с которой лог может отдаваться
// другому узлу. Если контрольной точки нет, то с самого начала лога.
func (l *Log) ServeFrom() (types.LSN, error) {
	ckp, ok, err := l.Checkpoint()
	if err != nil {
		return types.LSN{}, errors.Wrap(err, "read checkpoint")
	}

	first := l.FirstPosition()
	if !ok || types.LSNLess(ckp, first) {
		return first, nil
	}

	return ckp, nil
}
