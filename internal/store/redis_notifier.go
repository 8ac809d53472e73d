package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const feedPrefix = "roomsync:feed:"

type feedEvent struct {
	InstanceID string `json:"instanceId"`
}

// RedisNotifier extends a LocalNotifier across instances: every local
// Notify is published, and signals from other instances are replayed
// locally.
type RedisNotifier struct {
	*LocalNotifier
	rdb        *redis.Client
	instanceID string
	log        *zap.Logger
}

func NewRedisNotifier(rdb *redis.Client, log *zap.Logger) *RedisNotifier {
	return &RedisNotifier{
		LocalNotifier: NewLocalNotifier(),
		rdb:           rdb,
		instanceID:    uuid.NewString(),
		log:           log,
	}
}

func (n *RedisNotifier) Notify(ctx context.Context, roomID, topic string) {
	n.LocalNotifier.Notify(ctx, roomID, topic)

	data, _ := json.Marshal(feedEvent{InstanceID: n.instanceID})
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := n.rdb.Publish(pctx, feedPrefix+roomID+":"+topic, data).Err(); err != nil {
		n.log.Warn("feed publish failed", zap.String("room_id", roomID), zap.String("topic", topic), zap.Error(err))
	}
}

// Run replays remote signals until ctx ends.
func (n *RedisNotifier) Run(ctx context.Context) error {
	pubsub := n.rdb.PSubscribe(ctx, feedPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()
	n.log.Info("change feed subscribed", zap.String("instance_id", n.instanceID))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev feedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.InstanceID == n.instanceID {
				continue
			}
			roomID, topic, ok := parseFeedChannel(msg.Channel)
			if !ok {
				continue
			}
			n.LocalNotifier.Notify(ctx, roomID, topic)
		}
	}
}

// parseFeedChannel splits "roomsync:feed:<room>:<topic>". Room ids may
// contain colons; topics never do.
func parseFeedChannel(channel string) (roomID, topic string, ok bool) {
	rest, found := strings.CutPrefix(channel, feedPrefix)
	if !found {
		return "", "", false
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}
