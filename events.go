package fchat

import (
	"sync"

	"github.com/google/uuid"

	"github.com/feathrs/fchat-go/roster"
	"github.com/feathrs/fchat-go/wire"
)

// Event is a notification delivered to subscribers. Events derived from
// wire frames are delivered in the order the frames arrived.
type Event interface {
	event()
}

// ConnectionStateChanged is emitted once per connection state transition.
type ConnectionStateChanged struct {
	Old State
	New State
}

// IdentifierRenamed is emitted when a registry upsert changes the display
// name bound to an existing identifier.
type IdentifierRenamed struct {
	Namespace roster.Namespace
	ID        string
	OldName   string
	NewName   string
}

// MessageSource distinguishes where a message arrived.
type MessageSource int

const (
	SourceChannel MessageSource = iota
	SourcePrivate
	SourceAd
	SourceBroadcast
)

// MessageReceived is a chat message. Channel is the channel identifier and
// is empty for private messages and broadcasts.
type MessageReceived struct {
	Source  MessageSource
	Channel string
	Sender  string
	Message string
}

// SystemMessage is a server-generated informational message.
type SystemMessage struct {
	Channel string
	Message string
}

// CharacterStatus reports a character's presence (NLN/FLN/STA).
type CharacterStatus struct {
	Character string
	Online    bool
	Status    string
	StatusMsg string
	Gender    string
}

// Typing reports a typing state change on a private conversation.
type Typing struct {
	Character string
	Status    string
}

// ChannelEventKind tags a ChannelEvent.
type ChannelEventKind int

const (
	ChannelJoined ChannelEventKind = iota
	ChannelLeft
	ChannelSync
	ChannelDescribed
	ChannelInvite
)

// ChannelEvent reports channel membership and metadata changes.
type ChannelEvent struct {
	Kind        ChannelEventKind
	Channel     string
	Character   string
	Title       string
	Description string
	Members     []string
}

// UnrecognizedFrame is a frame the codec could not fully decode. Code is
// the raw tag when one could be read.
type UnrecognizedFrame struct {
	Code string
	Raw  []byte
}

// ProtocolError is a server-reported ERR. Code is ErrorUnknown when the
// raw number falls outside the known enumeration.
type ProtocolError struct {
	Code    wire.ErrorCode
	Raw     int
	Message string
}

// Overflow marks a gap in a slow subscriber's event stream. Dropped counts
// the events lost since the previous successfully delivered event.
type Overflow struct {
	Dropped int
}

func (ConnectionStateChanged) event() {}
func (IdentifierRenamed) event()      {}
func (MessageReceived) event()        {}
func (SystemMessage) event()          {}
func (CharacterStatus) event()        {}
func (Typing) event()                 {}
func (ChannelEvent) event()           {}
func (UnrecognizedFrame) event()      {}
func (ProtocolError) event()          {}
func (Overflow) event()               {}

// Subscription is a live handle on the event stream. Events() yields every
// published event until Close is called or the client shuts down.
type Subscription struct {
	id   uuid.UUID
	ch   chan Event
	d    *dispatcher
	once sync.Once
}

// Events returns the subscriber's event channel. It is closed when the
// subscription is closed or the client shuts down.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close unregisters the subscription. Other subscriptions are unaffected.
func (s *Subscription) Close() {
	s.once.Do(func() { s.d.unsubscribe(s.id) })
}

// subscriber pairs a Subscription with its bounded delivery queue. The
// publisher never blocks: when the queue is full the oldest entries are
// dropped and a single Overflow marker takes their place.
type subscriber struct {
	sub   *Subscription
	limit int

	mu      sync.Mutex
	queue   []Event
	dropped int

	wake chan struct{}
	done chan struct{}
}

// dispatcher fans events out to all subscribers independently.
type dispatcher struct {
	buffer int

	mu     sync.Mutex
	subs   map[uuid.UUID]*subscriber
	closed bool
}

func newDispatcher(buffer int) *dispatcher {
	if buffer < 4 {
		buffer = 4
	}
	return &dispatcher{
		buffer: buffer,
		subs:   make(map[uuid.UUID]*subscriber),
	}
}

func (d *dispatcher) subscribe() *Subscription {
	sub := &Subscription{
		id: uuid.New(),
		ch: make(chan Event),
		d:  d,
	}
	s := &subscriber{
		sub:   sub,
		limit: d.buffer,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		close(sub.ch)
		return sub
	}
	d.subs[sub.id] = s
	d.mu.Unlock()
	go s.pump()
	return sub
}

func (d *dispatcher) unsubscribe(id uuid.UUID) {
	d.mu.Lock()
	s, ok := d.subs[id]
	if ok {
		delete(d.subs, id)
	}
	d.mu.Unlock()
	if ok {
		close(s.done)
	}
}

// publish enqueues ev for every subscriber without ever blocking on a slow
// consumer.
func (d *dispatcher) publish(ev Event) {
	d.mu.Lock()
	for _, s := range d.subs {
		s.push(ev)
	}
	d.mu.Unlock()
}

// close unregisters every subscriber and closes their channels.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	subs := d.subs
	d.subs = make(map[uuid.UUID]*subscriber)
	d.mu.Unlock()
	for _, s := range subs {
		close(s.done)
	}
}

// push appends ev to the queue. When the queue is at its bound the oldest
// entries make way for a single Overflow marker at the head; further drops
// evict the entry right after the marker so the marker itself survives
// until the consumer sees it.
func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	if len(s.queue) >= s.limit {
		if _, hasMarker := s.queue[0].(Overflow); hasMarker {
			s.queue = append(s.queue[:1], s.queue[2:]...)
			s.dropped++
		} else {
			s.queue = s.queue[1:]
			s.dropped += 2
		}
		s.queue[0] = Overflow{Dropped: s.dropped}
	} else {
		s.dropped = 0
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump delivers queued events to the subscription channel. It is the sole
// sender on, and closer of, sub.ch.
func (s *subscriber) pump() {
	defer close(s.sub.ch)
	for {
		s.mu.Lock()
		var ev Event
		ok := len(s.queue) > 0
		if ok {
			ev = s.queue[0]
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()

		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		select {
		case s.sub.ch <- ev:
		case <-s.done:
			return
		}
	}
}
