package transport

import (
	"context"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/todobridge/internal/runtime/metadata"
)

// DefaultOutputBuffer is the channel buffer of each subscriber.
const DefaultOutputBuffer = 16

// SubscriptionSet tracks the watermill subscribers of a broker client, grouped
// by filter. Transports hand every broker delivery to Deliver, which copies the
// message to each subscriber of the filter and waits for its ack or nack.
type SubscriptionSet struct {
	// OnEmpty, when set, is called after the last subscriber of a filter leaves.
	OnEmpty func(filter string)

	buffer int

	mu      sync.Mutex
	subs    map[string]map[*subscriber]struct{}
	closed  bool
	closing chan struct{}
	wg      sync.WaitGroup
}

type subscriber struct {
	ctx  context.Context
	out  chan *message.Message
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewSubscriptionSet returns an empty set. buffer <= 0 uses DefaultOutputBuffer.
func NewSubscriptionSet(buffer int) *SubscriptionSet {
	if buffer <= 0 {
		buffer = DefaultOutputBuffer
	}
	return &SubscriptionSet{
		buffer:  buffer,
		subs:    make(map[string]map[*subscriber]struct{}),
		closing: make(chan struct{}),
	}
}

// Add registers a subscriber for filter. The returned channel is closed when
// ctx is done or the set is closed. first reports whether filter had no
// subscribers before, i.e. whether the caller must subscribe at the broker.
func (s *SubscriptionSet) Add(ctx context.Context, filter string) (out <-chan *message.Message, first bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, false
	}

	sub := &subscriber{
		ctx:  ctx,
		out:  make(chan *message.Message, s.buffer),
		done: make(chan struct{}),
	}
	group, exists := s.subs[filter]
	if !exists {
		group = make(map[*subscriber]struct{})
		s.subs[filter] = group
	}
	group[sub] = struct{}{}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
		case <-s.closing:
		}
		s.remove(filter, sub)
	}()

	return sub.out, !exists, true
}

func (s *SubscriptionSet) remove(filter string, sub *subscriber) {
	close(sub.done)
	sub.mu.Lock()
	sub.closed = true
	close(sub.out)
	sub.mu.Unlock()

	s.mu.Lock()
	group := s.subs[filter]
	delete(group, sub)
	empty := len(group) == 0
	if empty {
		delete(s.subs, filter)
	}
	closed := s.closed
	s.mu.Unlock()

	if empty && !closed && s.OnEmpty != nil {
		s.OnEmpty(filter)
	}
}

// Filters returns the filters that currently have subscribers, sorted.
func (s *SubscriptionSet) Filters() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	filters := make([]string, 0, len(s.subs))
	for f := range s.subs {
		filters = append(filters, f)
	}
	sort.Strings(filters)
	return filters
}

// Deliver hands msg to every subscriber of filter and blocks until each one
// acks, nacks or goes away. The concrete topic is stamped into the metadata.
// It returns the number of acks.
func (s *SubscriptionSet) Deliver(filter, topic string, msg *message.Message) int {
	metadata.StampTopic(topic, msg)

	s.mu.Lock()
	group := s.subs[filter]
	targets := make([]*subscriber, 0, len(group))
	for sub := range group {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	acked := 0
	for _, sub := range targets {
		if sub.deliver(msg.Copy()) {
			acked++
		}
	}
	return acked
}

func (sub *subscriber) deliver(msg *message.Message) bool {
	sub.mu.RLock()
	defer sub.mu.RUnlock()
	if sub.closed {
		return false
	}

	msg.SetContext(sub.ctx)
	select {
	case sub.out <- msg:
	case <-sub.done:
		return false
	}

	select {
	case <-msg.Acked():
		return true
	case <-msg.Nacked():
		return false
	case <-sub.done:
		return false
	}
}

// Close closes every subscriber channel and waits for them to drain.
func (s *SubscriptionSet) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.closing)
	s.mu.Unlock()

	s.wg.Wait()
}
