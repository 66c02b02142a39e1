package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/busline/msgbus/pkg/concurrency"
	"github.com/busline/msgbus/pkg/logger"
)

// PumpState is one of a MessagePump's lifecycle states.
type PumpState int

const (
	PumpCreated PumpState = iota
	PumpRunning
	PumpStopping
	PumpStopped
)

func (s PumpState) String() string {
	switch s {
	case PumpCreated:
		return "created"
	case PumpRunning:
		return "running"
	case PumpStopping:
		return "stopping"
	case PumpStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MessagePump is a single polling worker (spec.md §4.6): fetch a batch,
// parse and dispatch each message, delete on success, leave for redelivery
// on retryable failure, or dead-letter after MaxRetries. A bus configured
// for receive owns N independently-started pumps (spec.md §5), each its
// own goroutine sharing the QueueClient, Dispatcher, MessageParser and
// SendBus.
type MessagePump struct {
	name       string
	queue      QueueClient
	dispatcher *Dispatcher
	bus        SendBus
	maxRetries int
	batchSize  int

	mu      sync.Mutex
	state   PumpState
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewMessagePump builds a pump in state Created. It must be Start-ed
// before it polls anything. Parsing (spec.md §4.4) happens inside
// queue.Receive, per spec.md §4.6's explicit "implementer's choice" on
// where MessageParser runs — each adapter knows its own envelope shape
// and is given a *MessageParser/TypeRegistry at construction time to
// resolve it.
func NewMessagePump(name string, queue QueueClient, dispatcher *Dispatcher, bus SendBus, maxRetries, batchSize int) *MessagePump {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &MessagePump{
		name:       name,
		queue:      queue,
		dispatcher: dispatcher,
		bus:        bus,
		maxRetries: maxRetries,
		batchSize:  batchSize,
		state:      PumpCreated,
	}
}

// State returns the pump's current lifecycle state.
func (p *MessagePump) State() PumpState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start transitions Created → Running and launches the polling loop in a
// new goroutine. Calling Start more than once is a no-op.
func (p *MessagePump) Start(ctx context.Context) {
	p.mu.Lock()
	if p.state != PumpCreated {
		p.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.state = PumpRunning
	p.stopped = make(chan struct{})
	p.mu.Unlock()

	concurrency.SafeGo(runCtx, func() { p.run(runCtx) })
}

// run is the polling loop: while not stopping, receive a batch and
// dispatch each message in turn. Any unexpected panic inside one
// iteration is recovered and logged so a single bad message can never
// crash the process (spec.md §7 recovery policy).
func (p *MessagePump) run(ctx context.Context) {
	defer close(p.stopped)
	defer p.setState(PumpStopped)

	log := logger.L().With(slog.String("pump", p.name))
	for {
		if ctx.Err() != nil {
			return
		}
		p.pollOnce(ctx, log)
	}
}

func (p *MessagePump) pollOnce(ctx context.Context, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered from panic in pump loop", "panic", r)
		}
	}()

	messages, err := p.queue.Receive(ctx, p.batchSize)
	if err != nil {
		log.Error("transient receive error, continuing after backoff", "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		return
	}

	for _, raw := range messages {
		p.handleOne(ctx, log, raw)
	}
}

func (p *MessagePump) handleOne(ctx context.Context, log *slog.Logger, msg *TransportMessage) {
	if !msg.ParsingSucceeded {
		log.Warn("message failed to parse, escalating to fault handlers", "error", msg.ParseError)
		p.dispatcher.DispatchFault(ctx, p.bus, msg, msg.ParseError)
		p.deleteAndLog(ctx, log, msg)
		return
	}

	result := p.dispatcher.Dispatch(ctx, p.bus, msg)
	if result.Success {
		p.deleteAndLog(ctx, log, msg)
		return
	}

	if msg.RetryCount < p.maxRetries {
		log.Warn("handler failed, leaving message for redelivery",
			"messageType", msg.MessageTypeName, "retryCount", msg.RetryCount, "error", result.Error)
		return
	}

	log.Error("message exhausted retries, escalating to fault handlers",
		"messageType", msg.MessageTypeName, "retryCount", msg.RetryCount, "error", result.Error)
	p.dispatcher.DispatchFault(ctx, p.bus, msg, result.Error)
	p.deleteAndLog(ctx, log, msg)
}

func (p *MessagePump) deleteAndLog(ctx context.Context, log *slog.Logger, msg *TransportMessage) {
	if err := p.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		log.Error("failed to delete acknowledged message", "error", err)
	}
}

func (p *MessagePump) setState(s PumpState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// Stop signals cancellation and returns promptly without waiting for the
// in-flight iteration to finish; callers should follow with Join to await
// completion.
func (p *MessagePump) Stop() {
	p.mu.Lock()
	if p.state != PumpRunning {
		p.mu.Unlock()
		return
	}
	p.state = PumpStopping
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Join blocks until the pump's goroutine has returned from run, i.e. the
// current receive/dispatch iteration has completed and the loop has
// exited.
func (p *MessagePump) Join() {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped != nil {
		<-stopped
	}
}

// Dispose releases cloud client resources after the worker has stopped.
func (p *MessagePump) Dispose(ctx context.Context) error {
	return p.queue.Close(ctx)
}
