package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hiroai/roomsync/internal/metrics"
)

const relayPrefix = "roomsync:channel:"

type relayEnvelope struct {
	InstanceID string          `json:"instanceId"`
	Payload    json.RawMessage `json:"payload"`
}

// RedisRelay mirrors channel broadcasts between server instances so
// members of one room can be connected to different processes.
type RedisRelay struct {
	rdb        *redis.Client
	reg        *Registry
	instanceID string
	log        *zap.Logger
}

func NewRedisRelay(rdb *redis.Client, reg *Registry, log *zap.Logger) *RedisRelay {
	return &RedisRelay{
		rdb:        rdb,
		reg:        reg,
		instanceID: uuid.NewString(),
		log:        log,
	}
}

func (r *RedisRelay) InstanceID() string { return r.instanceID }

func (r *RedisRelay) Publish(roomID string, payload []byte) {
	data, err := json.Marshal(relayEnvelope{InstanceID: r.instanceID, Payload: payload})
	if err != nil {
		r.log.Warn("relay encode failed", zap.String("room_id", roomID), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.rdb.Publish(ctx, relayPrefix+roomID, data).Err(); err != nil {
		r.log.Warn("relay publish failed", zap.String("room_id", roomID), zap.Error(err))
	}
}

// Run delivers messages published by other instances until ctx ends.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.rdb.PSubscribe(ctx, relayPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()
	r.log.Info("channel relay subscribed", zap.String("instance_id", r.instanceID))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Debug("relay message dropped", zap.Error(err))
				continue
			}
			// Ignore events from this instance
			if env.InstanceID == r.instanceID {
				continue
			}
			roomID := strings.TrimPrefix(msg.Channel, relayPrefix)
			metrics.MessageRelayed()
			r.reg.Deliver(roomID, env.Payload)
		}
	}
}
