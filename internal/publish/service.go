// Package publish runs the time-gated posting loop: gate, select, publish,
// record.
package publish

import (
	"context"
	"math"
	"time"

	"herald/internal/logging"
	"herald/internal/metrics"
	"herald/internal/model"
	"herald/internal/platform"
	"herald/internal/rotation"
)

// Outcome summarises one tick or forced publish.
type Outcome string

const (
	Waiting   Outcome = "waiting"
	RollMiss  Outcome = "roll_miss"
	NoMessage Outcome = "no_message"
	Published Outcome = "published"
	Failed    Outcome = "failed"
)

// EventRecorder stores performed actions; *ledger.DB implements it.
type EventRecorder interface {
	PutEvent(ctx context.Context, ts time.Time, typ, ref string, payload any) error
}

// Options configures a Service.
type Options struct {
	LogPath         string
	LogTimeLayout   string
	Location        *time.Location
	CommitOnPublish bool
	Ledger          EventRecorder
	Now             func() time.Time
}

// Service owns the publish gate and performs publishes through an adapter.
type Service struct {
	adapter  platform.Adapter
	gate     *Gate
	selector *rotation.Selector
	opts     Options
}

func NewService(adapter platform.Adapter, gate *Gate, selector *rotation.Selector, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.LogTimeLayout == "" {
		opts.LogTimeLayout = "2006-01-02 15:04:05"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{adapter: adapter, gate: gate, selector: selector, opts: opts}
}

func (s *Service) Gate() *Gate { return s.gate }

// Tick is the hourly entry point.
func (s *Service) Tick(ctx context.Context) (Outcome, error) {
	now := s.opts.Now()
	if !s.gate.CanPostNow(now) {
		hours := int(math.Ceil(s.gate.Remaining(now).Hours()))
		metrics.IncGateTick(string(Waiting))
		logging.Info("publish_waiting", logging.Fields{"hours_remaining": hours})
		return Waiting, nil
	}
	if !s.gate.Roll() {
		metrics.IncGateTick(string(RollMiss))
		logging.Info("publish_roll_miss", nil)
		return RollMiss, nil
	}
	metrics.IncGateTick("roll_hit")
	bucket := model.BucketForHour(now.In(s.opts.Location).Hour())
	return s.publish(ctx, bucket)
}

// PublishNow publishes for bucket immediately, bypassing the gate. An empty
// bucket means the current wall-clock bucket.
func (s *Service) PublishNow(ctx context.Context, bucket model.Bucket) (Outcome, error) {
	if bucket == "" {
		bucket = model.BucketForHour(s.opts.Now().In(s.opts.Location).Hour())
	}
	return s.publish(ctx, bucket)
}

func (s *Service) publish(ctx context.Context, bucket model.Bucket) (Outcome, error) {
	var (
		msg string
		ok  bool
		err error
	)
	if s.opts.CommitOnPublish {
		msg, ok, err = s.selector.Choose(bucket)
	} else {
		msg, ok, err = s.selector.Select(bucket)
	}
	if err != nil {
		metrics.IncPublish("select_error")
		logging.Error("publish_select_failed", logging.Fields{"bucket": bucket, "error": err.Error()})
		return NoMessage, err
	}
	if !ok {
		metrics.IncPublish(string(NoMessage))
		logging.Warn("publish_no_message", logging.Fields{"bucket": bucket})
		return NoMessage, nil
	}

	logging.Info("publish_start", logging.Fields{"bucket": bucket, "platform": s.adapter.Name()})
	id, err := s.adapter.Publish(ctx, msg)
	if err != nil {
		metrics.IncPublish(string(Failed))
		logging.Error("publish_failed", logging.Fields{
			"bucket": bucket,
			"kind":   platform.Classify(err).String(),
			"error":  err.Error(),
		})
		return Failed, err
	}

	now := s.opts.Now()
	metrics.IncPublish("ok")
	logging.Info("publish_ok", logging.Fields{"bucket": bucket, "id": id, "url": s.adapter.PostURL(id)})

	if s.opts.CommitOnPublish {
		if err := s.selector.Remember(bucket, msg); err != nil {
			logging.Error("rotation_history_save_failed", logging.Fields{"error": err.Error()})
		}
	}
	if err := s.gate.MarkPublished(now); err != nil {
		logging.Error("publish_state_save_failed", logging.Fields{"error": err.Error()})
	}
	if s.opts.LogPath != "" {
		if err := AppendLog(s.opts.LogPath, s.opts.LogTimeLayout, now.In(s.opts.Location), bucket, msg); err != nil {
			logging.Error("publish_log_append_failed", logging.Fields{"error": err.Error()})
		}
	}
	if s.opts.Ledger != nil {
		if err := s.opts.Ledger.PutEvent(ctx, now, "publish", id, map[string]any{"bucket": bucket, "platform": s.adapter.Name()}); err != nil {
			logging.Warn("ledger_write_failed", logging.Fields{"error": err.Error()})
		}
	}
	return Published, nil
}
