package fanout

import "sync"

type subscriber interface {
	// deliver must not block and must not call back into the hub.
	deliver(c Change)
}

// Hub tracks which subscribers listen on which topics. Fan-out cost is
// proportional to the subscribers of the published topic only.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[subscriber]struct{}
	subs   map[subscriber]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]map[subscriber]struct{}),
		subs:   make(map[subscriber]map[string]struct{}),
	}
}

func (h *Hub) Subscribe(s subscriber, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	own := h.subs[s]
	if own == nil {
		own = make(map[string]struct{})
		h.subs[s] = own
	}
	for _, topic := range topics {
		if h.topics[topic] == nil {
			h.topics[topic] = make(map[subscriber]struct{})
		}
		h.topics[topic][s] = struct{}{}
		own[topic] = struct{}{}
	}
}

func (h *Hub) Unsubscribe(s subscriber, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	own := h.subs[s]
	for _, topic := range topics {
		h.removeLocked(s, topic)
		delete(own, topic)
	}
}

// Retarget replaces the topic set of a registered subscriber. It is a no-op
// once the subscriber has been unregistered.
func (h *Hub) Retarget(s subscriber, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	own, ok := h.subs[s]
	if !ok {
		return
	}
	want := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		want[t] = struct{}{}
	}
	for t := range own {
		if _, keep := want[t]; !keep {
			h.removeLocked(s, t)
			delete(own, t)
		}
	}
	for t := range want {
		if h.topics[t] == nil {
			h.topics[t] = make(map[subscriber]struct{})
		}
		h.topics[t][s] = struct{}{}
		own[t] = struct{}{}
	}
}

// Unregister drops every topic of s.
func (h *Hub) Unregister(s subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic := range h.subs[s] {
		h.removeLocked(s, topic)
	}
	delete(h.subs, s)
}

// Publish delivers c to every subscriber of topic. A subscriber on several of
// the given topics receives c once.
func (h *Hub) Publish(c Change, topics ...string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(topics) == 1 {
		for s := range h.topics[topics[0]] {
			s.deliver(c)
		}
		return
	}
	seen := make(map[subscriber]struct{})
	for _, topic := range topics {
		for s := range h.topics[topic] {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			s.deliver(c)
		}
	}
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) removeLocked(s subscriber, topic string) {
	if set, ok := h.topics[topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
}
