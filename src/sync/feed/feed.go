package feed

import (
	"context"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/giveth/pledge-sync/src/sync/data"
	"github.com/giveth/pledge-sync/src/sync/engine"
	"github.com/giveth/pledge-sync/src/sync/types"
)

// Feed pulls raw Transfer events off the redis stream and hands them to the
// engine. How events land on the stream (node subscription, replayer) is the
// producer's business; this side only consumes.
type Feed struct {
	rdb    *redis.Client
	engine *engine.Engine
	log    *log.Entry
}

func New(rdb *redis.Client, eng *engine.Engine) *Feed {
	return &Feed{rdb: rdb, engine: eng, log: log.WithField("component", "feed")}
}

// PublishAck pushes a processed-event ack for downstream consumers.
func (f *Feed) PublishAck(ctx context.Context, r engine.Result) {
	payload := map[string]interface{}{
		"trace":  r.TraceID,
		"tx":     r.Event.TxHash,
		"action": r.Action,
		"from":   strconv.FormatUint(r.Event.From, 10),
		"to":     strconv.FormatUint(r.Event.To, 10),
		"amount": r.Event.Amount.String(),
		"block":  strconv.FormatUint(r.Event.BlockNumber, 10),
	}
	if r.DonationID != 0 {
		payload["donation_id"] = strconv.FormatUint(r.DonationID, 10)
	}
	if r.SplitDonationID != 0 {
		payload["split_donation_id"] = strconv.FormatUint(r.SplitDonationID, 10)
	}
	if r.Err != nil {
		payload["error"] = r.Err.Error()
	}
	if err := data.PublishProcessed(ctx, f.rdb, payload); err != nil {
		f.log.WithFields(log.Fields{"trace": r.TraceID, "err": err}).Warn("failed to publish ack")
	}
}

// Run blocks reading the transfer stream until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	lastID := "$"
	f.log.WithField("stream", data.StreamTransfers).Info("listening for transfer events")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := f.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{data.StreamTransfers, lastID},
			Count:   10,
			Block:   5 * time.Second,
		}).Result()
		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				f.log.WithField("err", err).Warn("stream read failed")
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				ev, ok := parseEvent(msg.Values)
				if !ok {
					f.log.WithField("stream_id", msg.ID).Warn("malformed event, skipping")
					continue
				}
				if err := f.engine.OnTransferEvent(ctx, ev); err != nil {
					f.log.WithFields(log.Fields{"stream_id": msg.ID, "err": err}).Warn("event rejected")
				}
			}
		}
	}
}

func parseEvent(values map[string]interface{}) (types.RawEvent, bool) {
	str := func(key string) string {
		s, _ := values[key].(string)
		return s
	}

	ev := types.RawEvent{
		Event:  str("event"),
		TxHash: str("tx"),
	}
	var err error
	if ev.From, err = strconv.ParseUint(str("from"), 10, 64); err != nil {
		return ev, false
	}
	if ev.To, err = strconv.ParseUint(str("to"), 10, 64); err != nil {
		return ev, false
	}
	if ev.BlockNumber, err = strconv.ParseUint(str("block"), 10, 64); err != nil {
		return ev, false
	}
	amount, ok := new(big.Int).SetString(str("amount"), 10)
	if !ok {
		return ev, false
	}
	ev.Amount = amount
	return ev, ev.TxHash != ""
}
