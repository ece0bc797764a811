package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a notification about something the hook program did.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`

	// Source identifies the component that emitted the event.
	Source string `json:"source"`

	// Mint and Owner identify the transfer or policy record involved.
	Mint  string `json:"mint,omitempty"`
	Owner string `json:"owner,omitempty"`

	// Account is the main account touched, if any.
	Account string `json:"account,omitempty"`

	Message string                 `json:"message"`
	Level   string                 `json:"level"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeHookExecuted          = "hook.executed"
	EventTypeHookRejected          = "hook.rejected"
	EventTypeDescriptorInitialized = "descriptor.initialized"
	EventTypeAllowListUpdated      = "allowlist.updated"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers, inline or through a buffer.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		if ep.config.MaxBatchSize <= 0 {
			ep.config.MaxBatchSize = 1
		}
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers. Synchronous publishers
// deliver before returning; async ones fail fast when the buffer is full.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishHookExecuted publishes an approved transfer with its new counter value.
func (ep *EventPublisher) PublishHookExecuted(mint, owner, destination string, amount, transferCount uint64) error {
	return ep.Publish(Event{
		Type:    EventTypeHookExecuted,
		Source:  "hook",
		Mint:    mint,
		Owner:   owner,
		Account: destination,
		Message: fmt.Sprintf("Transfer of %d approved for %s (count %d)", amount, owner, transferCount),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"amount":         amount,
			"transfer_count": transferCount,
		},
	})
}

// PublishHookRejected publishes a transfer rejected with code.
func (ep *EventPublisher) PublishHookRejected(mint, owner, destination, code, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeHookRejected,
		Source:  "hook",
		Mint:    mint,
		Owner:   owner,
		Account: destination,
		Message: fmt.Sprintf("Transfer from %s rejected: %s", owner, reason),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"code":   code,
			"reason": reason,
		},
	})
}

// PublishDescriptorInitialized publishes the creation of a mint's descriptor.
func (ep *EventPublisher) PublishDescriptorInitialized(mint, descriptor, payer string, extras int) error {
	return ep.Publish(Event{
		Type:    EventTypeDescriptorInitialized,
		Source:  "hook",
		Mint:    mint,
		Owner:   payer,
		Account: descriptor,
		Message: fmt.Sprintf("Extra-account descriptor %s initialized for mint %s", descriptor, mint),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"extra_accounts": extras,
		},
	})
}

// PublishAllowListUpdated publishes an allow-list append.
func (ep *EventPublisher) PublishAllowListUpdated(authority, policyAccount, destination string, size int) error {
	return ep.Publish(Event{
		Type:    EventTypeAllowListUpdated,
		Source:  "hook",
		Owner:   authority,
		Account: policyAccount,
		Message: fmt.Sprintf("Destination %s allowed by %s", destination, authority),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"destination": destination,
			"size":        size,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents batches buffered events and delivers a batch when it is
// full or the flush interval elapses.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	interval := ep.config.FlushInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				ep.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ep.ctx.Done():
			// Drain whatever is still buffered.
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					ep.flushBatch(batch)
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent calls matching subscribers in registration order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher after delivering buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of minLevel or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByMint creates a filter that only allows events for one mint.
func FilterByMint(mint string) EventFilter {
	return func(event Event) bool {
		return event.Mint == mint
	}
}

// FilterByOwner creates a filter that only allows events for one owner.
func FilterByOwner(owner string) EventFilter {
	return func(event Event) bool {
		return event.Owner == owner
	}
}
