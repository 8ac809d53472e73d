package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"hiroai/roomsync/internal/metrics"
)

// Endpoint is one connected recipient of room messages.
type Endpoint interface {
	ID() string
	Open() bool
	Send(payload []byte) error
}

// Message is a consumer-defined JSON object. The registry owns the "id"
// and "timestamp" keys.
type Message map[string]any

// Publisher forwards stamped payloads to other instances.
type Publisher interface {
	Publish(roomID string, payload []byte)
}

// Registry tracks the endpoints joined to each room and fans messages
// out to them. Rooms exist only while they have members.
type Registry struct {
	mu    sync.Mutex
	rooms map[string][]Endpoint
	seq   uint64

	relay Publisher
	log   *zap.Logger
	now   func() time.Time
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		rooms: make(map[string][]Endpoint),
		log:   log,
		now:   time.Now,
	}
}

// SetRelay installs a cross-instance publisher. Call before serving.
func (r *Registry) SetRelay(p Publisher) { r.relay = p }

// Handle is returned by Join and removes the endpoint on Leave.
type Handle struct {
	reg    *Registry
	roomID string
	ep     Endpoint
	once   sync.Once
	left   int
}

func (h *Handle) RoomID() string { return h.roomID }

// Leave removes the endpoint from its room and returns how many members
// remain. Repeated calls are no-ops returning the first result.
func (h *Handle) Leave() int {
	h.once.Do(func() { h.left = h.reg.leave(h.roomID, h.ep) })
	return h.left
}

// Join adds ep to roomID, creating the room on first join.
func (r *Registry) Join(roomID string, ep Endpoint) *Handle {
	r.mu.Lock()
	members, ok := r.rooms[roomID]
	r.rooms[roomID] = append(members, ep)
	r.mu.Unlock()

	if !ok {
		metrics.RoomOpened()
	}
	metrics.MemberJoined()
	r.log.Debug("channel join", zap.String("room_id", roomID), zap.String("endpoint", ep.ID()))
	return &Handle{reg: r, roomID: roomID, ep: ep}
}

func (r *Registry) leave(roomID string, ep Endpoint) int {
	r.mu.Lock()
	members := r.rooms[roomID]
	idx := -1
	for i, m := range members {
		if m == ep {
			idx = i
			break
		}
	}
	if idx < 0 {
		n := len(members)
		r.mu.Unlock()
		return n
	}
	next := make([]Endpoint, 0, len(members)-1)
	next = append(next, members[:idx]...)
	next = append(next, members[idx+1:]...)
	emptied := len(next) == 0
	if emptied {
		delete(r.rooms, roomID)
	} else {
		r.rooms[roomID] = next
	}
	r.mu.Unlock()

	metrics.MemberLeft()
	if emptied {
		metrics.RoomClosed()
	}
	r.log.Debug("channel leave", zap.String("room_id", roomID), zap.String("endpoint", ep.ID()), zap.Int("remaining", len(next)))
	return len(next)
}

// Broadcast stamps msg with a server id and ISO-8601 timestamp and
// delivers it to every open member of roomID, including the sender.
// It returns the number of successful deliveries.
func (r *Registry) Broadcast(roomID string, msg Message) int {
	stamped := make(Message, len(msg)+2)
	for k, v := range msg {
		stamped[k] = v
	}
	now := r.now()
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.mu.Unlock()
	stamped["id"] = fmt.Sprintf("%d-%d", now.UnixMilli(), seq)
	stamped["timestamp"] = now.UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(stamped)
	if err != nil {
		r.log.Warn("channel message not encodable", zap.String("room_id", roomID), zap.Error(err))
		return 0
	}
	metrics.MessageBroadcast()
	if r.relay != nil {
		r.relay.Publish(roomID, payload)
	}
	return r.Deliver(roomID, payload)
}

// Deliver sends an already stamped payload to local members.
func (r *Registry) Deliver(roomID string, payload []byte) int {
	r.mu.Lock()
	members := append([]Endpoint(nil), r.rooms[roomID]...)
	r.mu.Unlock()

	delivered := 0
	for _, ep := range members {
		if !ep.Open() {
			continue
		}
		if err := r.sendOne(ep, payload); err != nil {
			metrics.DeliveryFailed()
			r.log.Warn("channel delivery failed",
				zap.String("room_id", roomID),
				zap.String("endpoint", ep.ID()),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Registry) sendOne(ep Endpoint, payload []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("endpoint panicked: %v", p)
		}
	}()
	return ep.Send(payload)
}

// Members returns the number of endpoints joined to roomID.
func (r *Registry) Members(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[roomID])
}

// Rooms returns the number of rooms with at least one member.
func (r *Registry) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
