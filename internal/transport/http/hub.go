package http

import (
	"sync"

	"group-quiz-service/internal/domain"
	"github.com/sirupsen/logrus"
)

const sendBuffer = 32

// Hub fans group broadcasts out to every connected member. Broadcast never blocks:
// a member whose buffer is full misses the message.
type Hub struct {
	log logrus.FieldLogger

	mu     sync.RWMutex
	groups map[string]map[*member]struct{}
}

type member struct {
	groupID string
	userID  string
	send    chan domain.Message

	closeOnce sync.Once
	done      chan struct{}
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{log: log, groups: make(map[string]map[*member]struct{})}
}

func (h *Hub) Broadcast(groupID string, msg domain.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for m := range h.groups[groupID] {
		if !m.offer(msg) {
			h.log.WithFields(logrus.Fields{
				"group_id":       groupID,
				"participant_id": m.userID,
				"type":           msg.Type,
			}).Warn("member send buffer full, dropping message")
		}
	}
}

func (h *Hub) join(groupID, userID string) *member {
	m := &member{
		groupID: groupID,
		userID:  userID,
		send:    make(chan domain.Message, sendBuffer),
		done:    make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[groupID]
	if !ok {
		members = make(map[*member]struct{})
		h.groups[groupID] = members
	}
	members[m] = struct{}{}
	return m
}

func (h *Hub) leave(m *member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.groups[m.groupID]
	delete(members, m)
	if len(members) == 0 {
		delete(h.groups, m.groupID)
	}
	m.close()
}

// Members is the number of connections in groupID.
func (h *Hub) Members(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[groupID])
}

func (m *member) offer(msg domain.Message) bool {
	select {
	case m.send <- msg:
		return true
	default:
		return false
	}
}

// reply queues a direct response, waiting for buffer space until the member leaves.
func (m *member) reply(msg domain.Message) {
	select {
	case m.send <- msg:
	case <-m.done:
	}
}

// close releases anyone waiting in reply; safe to call more than once.
func (m *member) close() {
	m.closeOnce.Do(func() { close(m.done) })
}
