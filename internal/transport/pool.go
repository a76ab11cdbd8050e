package transport

import (
	"sync"
)

// pool пул обработчиков входящих сообщений. Очередь не ограничена:
// обработчик может отправлять сообщения, которые попадут в этот же пул.
type pool struct {
	lock   sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	pending sync.WaitGroup
	workers sync.WaitGroup
}

func newPool(workers int) *pool {
	if workers < 1 {
		workers = 1
	}

	p := &pool{}
	p.cond = sync.NewCond(&p.lock)
	for i := 0; i < workers; i++ {
		p.workers.Add(1)
		go p.worker()
	}

	return p
}

// submit постановка задачи в очередь. После закрытия задачи отбрасываются.
func (p *pool) submit(job func()) bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return false
	}

	p.pending.Add(1)
	p.queue = append(p.queue, job)
	p.cond.Signal()
	return true
}

// wait ожидание выполнения всех поставленных задач, включая
// поставленные самими задачами.
func (p *pool) wait() {
	p.pending.Wait()
}

// close закрытие пула. Уже поставленные задачи выполняются.
func (p *pool) close() {
	p.lock.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.lock.Unlock()

	p.workers.Wait()
}

func (p *pool) worker() {
	defer p.workers.Done()

	for {
		p.lock.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.lock.Unlock()
			return
		}

		job := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.lock.Unlock()

		job()
		p.pending.Done()
	}
}
