package llm

import "github.com/larsll/deepracer-llm-agent/internal/models"

// Conversation is a bounded FIFO of role-tagged messages backed by a ring
// buffer. Capacity is twice the context window: one user and one assistant
// entry per remembered turn. A zero window disables memory entirely.
type Conversation struct {
	buf   []models.Message
	start int
	size  int
}

// NewConversation creates a conversation bounded to the given context window.
func NewConversation(contextWindow int) *Conversation {
	c := &Conversation{}
	c.SetWindow(contextWindow)
	return c
}

// SetWindow resizes the retained history to 2×window entries, keeping the
// most recent messages.
func (c *Conversation) SetWindow(window int) {
	if window < 0 {
		window = 0
	}
	capacity := window * 2
	if capacity == cap(c.buf) {
		return
	}

	recent := c.Messages()
	if len(recent) > capacity {
		recent = recent[len(recent)-capacity:]
	}

	c.buf = make([]models.Message, capacity)
	c.start = 0
	c.size = copy(c.buf, recent)
}

// Append adds a message, evicting the oldest entry once the bound is hit.
// It is a no-op when memory is disabled.
func (c *Conversation) Append(msg models.Message) {
	capacity := cap(c.buf)
	if capacity == 0 {
		return
	}
	if c.size < capacity {
		c.buf[(c.start+c.size)%capacity] = msg
		c.size++
		return
	}
	c.buf[c.start] = msg
	c.start = (c.start + 1) % capacity
}

// Messages returns the retained history, oldest first.
func (c *Conversation) Messages() []models.Message {
	out := make([]models.Message, 0, c.size)
	for i := 0; i < c.size; i++ {
		out = append(out, c.buf[(c.start+i)%cap(c.buf)])
	}
	return out
}

// Len reports the number of retained messages.
func (c *Conversation) Len() int {
	return c.size
}

// Clear discards all retained messages without changing the bound.
func (c *Conversation) Clear() {
	c.start = 0
	c.size = 0
}
