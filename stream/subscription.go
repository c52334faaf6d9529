package stream

import (
	"context"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"gumboard-api/storage"
)

const reconnectDelay = time.Second

// SubscribeUpdates listens on the board update channels and forwards each
// update to the broker until ctx is done.
func SubscribeUpdates(ctx context.Context, logger *log.Logger, rc *redis.Client, broker *Broker) {
	for {
		sub := rc.PSubscribe(ctx, storage.BoardUpdatesChannelPrefix+"*")
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				forward(logger, broker, msg)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func forward(logger *log.Logger, broker *Broker, msg *redis.Message) {
	var upd storage.BoardUpdate
	if err := sonic.UnmarshalString(msg.Payload, &upd); err != nil {
		logger.WithError(err).WithField("channel", msg.Channel).Warn("unable to parse board update")
		return
	}
	boardID := strings.TrimPrefix(msg.Channel, storage.BoardUpdatesChannelPrefix)
	if upd.BoardID != boardID {
		logger.WithFields(log.Fields{"channel": msg.Channel, "board": upd.BoardID}).Warn("board update on foreign channel")
		return
	}
	broker.Publish(boardID, []byte(msg.Payload))
}
