package mqtt

import (
	"fmt"
	"sync"
)

// MessageHandler receives messages on a subscribed topic. It runs on a
// paho goroutine; a returned error is logged.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// subscriptionSet remembers subscriptions so they can be replayed after
// an automatic reconnect. The zero value is ready to use.
type subscriptionSet struct {
	mu sync.RWMutex
	m  map[string]subscription
}

func (s *subscriptionSet) put(sub subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[string]subscription)
	}
	s.m[sub.topic] = sub
}

func (s *subscriptionSet) drop(topic string) {
	s.mu.Lock()
	delete(s.m, topic)
	s.mu.Unlock()
}

func (s *subscriptionSet) has(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[topic]
	return ok
}

func (s *subscriptionSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *subscriptionSet) snapshot() []subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]subscription, 0, len(s.m))
	for _, sub := range s.m {
		out = append(out, sub)
	}
	return out
}

// Subscribe registers handler for topic, which may contain the + and #
// wildcards. The subscription survives reconnects.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or
//     ErrSubscribeFailed wrapping the cause
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	sub := subscription{topic: topic, qos: qos, handler: handler}
	c.subs.put(sub)
	if err := await(c.paho.Subscribe(topic, qos, c.dispatch(handler)), ErrSubscribeFailed); err != nil {
		c.subs.drop(topic)
		return err
	}
	return nil
}

// Unsubscribe forgets topic. Messages already in flight may still arrive.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subs.drop(topic)
	return await(c.paho.Unsubscribe(topic), ErrUnsubscribeFailed)
}

// SubscriptionCount returns the number of remembered subscriptions.
func (c *Client) SubscriptionCount() int {
	return c.subs.len()
}

// HasSubscription reports whether topic, compared literally, is subscribed.
func (c *Client) HasSubscription(topic string) bool {
	return c.subs.has(topic)
}
