package application

import (
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// guildOutbox runs jobs off the event loop, one worker per guild.
// Jobs of the same guild run in submission order; guilds never wait on each other.
type guildOutbox struct {
	mu      sync.Mutex
	pending map[snowflake.ID][]func()
	closed  bool
	wg      sync.WaitGroup
}

func newGuildOutbox() *guildOutbox {
	return &guildOutbox{pending: make(map[snowflake.ID][]func())}
}

// push queues job for guildID and starts the guild's worker if it is not running.
// It reports false once the outbox is closed.
func (o *guildOutbox) push(guildID snowflake.ID, job func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}

	jobs, running := o.pending[guildID]
	o.pending[guildID] = append(jobs, job)
	if running {
		return true
	}

	o.wg.Add(1)
	go o.drain(guildID)
	return true
}

func (o *guildOutbox) drain(guildID snowflake.ID) {
	defer o.wg.Done()
	for {
		o.mu.Lock()
		jobs := o.pending[guildID]
		if len(jobs) == 0 {
			delete(o.pending, guildID)
			o.mu.Unlock()
			return
		}
		job := jobs[0]
		o.pending[guildID] = jobs[1:]
		o.mu.Unlock()

		job()
	}
}

// close rejects new jobs and waits for queued ones to finish.
func (o *guildOutbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.wg.Wait()
}
