package service

import (
	"sync"

	"github.com/masimlabs/masim/internal/domain"
)

// broadcaster fans job status updates out to per-job subscribers. Slow
// subscribers drop updates rather than block the worker.
type broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan *domain.Job]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[string]map[chan *domain.Job]struct{})}
}

func (b *broadcaster) subscribe(jobID string) (<-chan *domain.Job, func()) {
	ch := make(chan *domain.Job, 8)

	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[chan *domain.Job]struct{})
	}
	b.subs[jobID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[jobID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, jobID)
			}
		}
	}
	return ch, cancel
}

func (b *broadcaster) publish(job *domain.Job) {
	snapshot := *job

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[job.JobID] {
		select {
		case ch <- &snapshot:
		default:
		}
	}
}
