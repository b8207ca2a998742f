package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/jukebot/internal/modules/music_player/domain"
)

// DefaultEventBufferSize is the default buffer size of the loop's inbox.
const DefaultEventBufferSize = 100

// ErrEventLoopClosed is returned when submitting to a closed EventLoop.
var ErrEventLoopClosed = errors.New("event loop closed")

// Compile-time checks that EventLoop implements ports interfaces.
var (
	_ ports.EventPublisher  = (*EventLoop)(nil)
	_ ports.EventSubscriber = (*EventLoop)(nil)
	_ ports.Scheduler       = (*EventLoop)(nil)
)

type loopContextKey struct{}

type loopTask struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// loopItem is either an event or a task.
type loopItem struct {
	event domain.Event
	task  *loopTask
}

// EventLoop is the single scheduling context of the music player.
// One dispatcher goroutine runs submitted tasks and delivers published events
// in submission order. It implements EventPublisher, EventSubscriber and Scheduler.
type EventLoop struct {
	inbox    chan loopItem
	handlers map[reflect.Type][]func(context.Context, domain.Event)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
	mu     sync.RWMutex
}

// NewEventLoop creates a new EventLoop with the given buffer size and starts
// its dispatcher.
func NewEventLoop(bufferSize int) *EventLoop {
	if bufferSize <= 0 {
		bufferSize = DefaultEventBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	loop := &EventLoop{
		inbox:    make(chan loopItem, bufferSize),
		handlers: make(map[reflect.Type][]func(context.Context, domain.Event)),
		ctx:      context.WithValue(ctx, loopContextKey{}, true),
		cancel:   cancel,
	}

	loop.wg.Add(1)
	go loop.dispatch()

	return loop
}

func (l *EventLoop) dispatch() {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case item := <-l.inbox:
			if item.task != nil {
				l.runTask(item.task)
				continue
			}
			l.deliver(item.event)
		}
	}
}

func (l *EventLoop) runTask(task *loopTask) {
	if err := task.ctx.Err(); err != nil {
		task.done <- err
		return
	}

	// Tasks see the caller's deadline and values, plus the loop marker.
	ctx := context.WithValue(task.ctx, loopContextKey{}, true)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in event loop task", "panic", r)
			task.done <- fmt.Errorf("event loop task panicked: %v", r)
		}
	}()

	task.done <- task.fn(ctx)
}

func (l *EventLoop) deliver(event domain.Event) {
	eventType := reflect.TypeOf(event)

	l.mu.RLock()
	handlers := l.handlers[eventType]
	l.mu.RUnlock()

	if len(handlers) == 0 {
		slog.Debug("no handlers for event", "type", eventType.Name())
		return
	}

	for _, handler := range handlers {
		l.safeHandle(handler, event)
	}
}

func (l *EventLoop) safeHandle(handler func(context.Context, domain.Event), event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(
				"panic in event handler",
				"type", reflect.TypeOf(event).Name(),
				"guild", event.Guild(),
				"panic", r,
			)
		}
	}()
	handler(l.ctx, event)
}

// OnLoop reports whether ctx was handed out by an EventLoop.
func OnLoop(ctx context.Context) bool {
	onLoop, _ := ctx.Value(loopContextKey{}).(bool)
	return onLoop
}

// Run executes fn on the loop and waits for its result.
// Calls from a context handed out by the loop run inline.
func (l *EventLoop) Run(ctx context.Context, fn func(context.Context) error) error {
	if OnLoop(ctx) {
		return fn(ctx)
	}

	task := &loopTask{
		ctx:  ctx,
		fn:   fn,
		done: make(chan error, 1),
	}

	if err := l.submit(ctx, loopItem{task: task}); err != nil {
		return err
	}

	select {
	case err := <-task.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ctx.Done():
		return ErrEventLoopClosed
	}
}

func (l *EventLoop) submit(ctx context.Context, item loopItem) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return ErrEventLoopClosed
	}

	select {
	case l.inbox <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish queues an event for delivery on the loop.
// It never blocks: when the inbox is full the event is handed off to a
// goroutine that waits for room.
func (l *EventLoop) Publish(event domain.Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	eventType := reflect.TypeOf(event).Name()

	if l.closed {
		slog.Warn("attempted to publish to closed event loop", "type", eventType)
		return ErrEventLoopClosed
	}

	select {
	case l.inbox <- loopItem{event: event}:
		slog.Debug("published event", "type", eventType, "guild", event.Guild())
	default:
		slog.Warn("event buffer full, delivering asynchronously", "type", eventType)
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			select {
			case l.inbox <- loopItem{event: event}:
			case <-l.ctx.Done():
				slog.Warn("dropping event on shutdown", "type", eventType, "guild", event.Guild())
			}
		}()
	}

	return nil
}

// Subscribe registers a handler for events of the given type.
func (l *EventLoop) Subscribe(
	eventType reflect.Type,
	handler func(context.Context, domain.Event),
) error {
	if eventType == nil {
		return errors.New("event type must not be nil")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrEventLoopClosed
	}

	l.handlers[eventType] = append(l.handlers[eventType], handler)
	return nil
}

// Close stops the dispatcher. Queued items that were not yet dispatched are dropped.
func (l *EventLoop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()

	slog.Debug("event loop closed")
}
