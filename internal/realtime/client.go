package realtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrChannelInUse = errors.New("realtime: channel name already in use")
	ErrClientClosed = errors.New("realtime: client closed")
	ErrNoBindings   = errors.New("realtime: channel has no bindings")
)

// Filter selects events of one table. Empty Events means all types. Match
// compares columns of the event's row by their printed value.
type Filter struct {
	Schema string
	Table  string
	Events []EventType
	Match  map[string]any
}

func (f Filter) matches(ev ChangeEvent) bool {
	schema := f.Schema
	if schema == "" {
		schema = DefaultSchema
	}
	if ev.Schema != schema || ev.Table != f.Table {
		return false
	}
	if len(f.Events) > 0 && !slices.Contains(f.Events, ev.EventType) {
		return false
	}
	row := ev.Row()
	for col, want := range f.Match {
		got, ok := row[col]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// Handler receives matching events on the channel's delivery goroutine. ctx
// is cancelled as soon as the channel starts closing; a handler that blocks
// must give up when it is.
type Handler func(ctx context.Context, ev ChangeEvent)

type binding struct {
	filter  Filter
	handler Handler
}

// Client owns the named channels of one subscriber, typically one session.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger

	mu       sync.Mutex
	channels map[string]*Channel
	closed   bool
}

func NewClient(rdb *redis.Client, logger *zap.Logger) *Client {
	return &Client{
		rdb:      rdb,
		logger:   logger,
		channels: make(map[string]*Channel),
	}
}

// Channel starts building a channel. Names are unique per client while the
// channel is open.
func (c *Client) Channel(name string) *ChannelBuilder {
	return &ChannelBuilder{client: c, name: name}
}

// Close closes every open channel. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	open := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		open = append(open, ch)
	}
	c.mu.Unlock()

	for _, ch := range open {
		ch.Close()
	}
}

// Open reports the names of open channels, sorted.
func (c *Client) Open() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (c *Client) release(ch *Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channels[ch.name] == ch {
		delete(c.channels, ch.name)
	}
}

type ChannelBuilder struct {
	client   *Client
	name     string
	bindings []binding
}

func (b *ChannelBuilder) On(f Filter, h Handler) *ChannelBuilder {
	b.bindings = append(b.bindings, binding{filter: f, handler: h})
	return b
}

// Subscribe opens the channel and returns once Redis has confirmed the
// subscription, so no event published afterwards is missed.
func (b *ChannelBuilder) Subscribe(ctx context.Context) (*Channel, error) {
	if len(b.bindings) == 0 {
		return nil, ErrNoBindings
	}
	c := b.client

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	if _, taken := c.channels[b.name]; taken {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrChannelInUse, b.name)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	ch := &Channel{
		name:     b.name,
		client:   c,
		bindings: b.bindings,
		ctx:      runCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	c.channels[b.name] = ch
	c.mu.Unlock()

	var topics []string
	for _, bd := range b.bindings {
		if t := Topic(bd.filter.Schema, bd.filter.Table); !slices.Contains(topics, t) {
			topics = append(topics, t)
		}
	}

	ps := c.rdb.Subscribe(ctx, topics...)
	for range topics {
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			cancel()
			close(ch.done)
			c.release(ch)
			return nil, fmt.Errorf("subscribe %s: %w", b.name, err)
		}
	}
	ch.pubsub = ps

	go ch.deliver(ps.Channel())
	return ch, nil
}

// Channel is a live subscription. Close it to stop deliveries.
type Channel struct {
	name     string
	client   *Client
	bindings []binding
	pubsub   *redis.PubSub

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (ch *Channel) Name() string { return ch.name }

func (ch *Channel) deliver(msgs <-chan *redis.Message) {
	defer close(ch.done)
	for {
		select {
		case <-ch.ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			ev, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				ch.client.logger.Warn("dropping malformed change event",
					zap.String("channel", ch.name), zap.Error(err))
				continue
			}
			for _, bd := range ch.bindings {
				if ch.ctx.Err() != nil {
					return
				}
				if bd.filter.matches(ev) {
					bd.handler(ch.ctx, ev)
				}
			}
		}
	}
}

// Close unsubscribes and waits for the delivery goroutine to finish, so no
// handler runs after Close returns. It must not be called from one of the
// channel's own handlers. Closing twice is a no-op.
func (ch *Channel) Close() {
	ch.closeOnce.Do(func() {
		ch.cancel()
		if ch.pubsub != nil {
			_ = ch.pubsub.Close()
		}
		<-ch.done
		ch.client.release(ch)
	})
}

// Done is closed once the channel has stopped delivering.
func (ch *Channel) Done() <-chan struct{} { return ch.done }
