package resync

import (
	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/reperr"
	"github.com/sirkon/repinit/internal/wire"
)

// Recover обработка журнала оставшегося от прерванной попытки. Вызывается
// при запуске узла до того как он начнёт обслуживать запросы.
func (c *Coordinator) Recover() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.session != nil {
		return errors.Wrap(ErrBusy, "recover").Stg("phase", c.session.phase)
	}
	if c.removing {
		return errors.Wrap(ErrBusy, "recover").Str("phase", "removal of aborted attempt")
	}

	return c.recover()
}

// recover если журнала нет, то делать нечего. Если список получаемых
// файлов не успели дописать, то удаление старого состояния могло не
// начаться и журнал просто убирается. Иначе все локальные базы из обоих
// списков удаляются и лог сбрасывается: данные незавершённой попытки
// не могут использоваться.
func (c *Coordinator) recover() error {
	rec, ok, err := c.ledger.Read()
	if err != nil {
		return errors.Wrap(err, "read ledger")
	}
	if !ok {
		return nil
	}

	if !rec.HasFetch {
		if err := c.ledger.Remove(); err != nil {
			return errors.Wrap(err, "remove ledger")
		}

		c.logger.RecoveryPerformed(0, false)
		return nil
	}

	if err := c.log.TruncateAndReset(1); err != nil {
		return reperr.Storage(errors.Wrap(err, "reset log"))
	}

	var cleanup reperr.Cleanup
	for _, list := range []wire.FileList{rec.Removal, rec.Fetch} {
		for i := range list {
			d := &list[i]
			cleanup.Add("remove database "+string(d.Name), func() error {
				return c.catalog.RemoveByDescriptor(d)
			})
		}
	}
	removed := len(rec.Removal) + len(rec.Fetch)

	if err := cleanup.Run(); err != nil {
		return err
	}

	if err := c.receipts.Reset(); err != nil {
		return reperr.Storage(errors.Wrap(err, "reset page receipts"))
	}

	if err := c.ledger.Remove(); err != nil {
		return errors.Wrap(err, "remove ledger")
	}

	c.logger.RecoveryPerformed(removed, true)
	return nil
}
