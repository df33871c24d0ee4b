// Package schedule fires the calendar-anchored trading-day events shared by
// every symbol: the day-open reset, the pre-close guard, the post-close
// cleanup and the pre-open stream reconnect. All rules run in the exchange's
// local timezone, weekdays only, independent of quote traffic.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/driftware/drip/internal/stream"
)

// Times holds the daily schedule instants as "HH:MM" in the exchange's
// local timezone.
type Times struct {
	DayOpen          string
	PreClose         string
	PostClose        string
	PreOpenReconnect string
}

type resetter interface {
	ResetDay(ctx context.Context)
}

type orderCanceller interface {
	CancelAllOrders(ctx context.Context) error
}

type dataStream interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Status() stream.Status
}

type closeGuard interface {
	Arm()
	Disarm()
}

// Coordinator owns the cron entries for the daily schedule.
type Coordinator struct {
	cron   *cron.Cron
	engine resetter
	broker orderCanceller
	stream dataStream
	guard  closeGuard
	logger *zap.Logger
}

// New registers the four daily rules. Times are validated up front; a
// malformed time is a startup error, not something to discover at fire time.
func New(times Times, loc *time.Location, engine resetter, broker orderCanceller,
	dstream dataStream, guard closeGuard, logger *zap.Logger) (*Coordinator, error) {

	c := &Coordinator{
		cron:   cron.New(cron.WithLocation(loc)),
		engine: engine,
		broker: broker,
		stream: dstream,
		guard:  guard,
		logger: logger.With(zap.String("component", "schedule")),
	}

	entries := []struct {
		name string
		at   string
		run  func()
	}{
		{"day-open", times.DayOpen, c.dayOpen},
		{"pre-close", times.PreClose, c.preClose},
		{"post-close", times.PostClose, c.postClose},
		{"pre-open-reconnect", times.PreOpenReconnect, c.preOpenReconnect},
	}
	for _, e := range entries {
		spec, err := weekdaySpec(e.at)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s time", e.name)
		}
		if _, err := c.cron.AddFunc(spec, e.run); err != nil {
			return nil, errors.Wrapf(err, "failed to schedule %s", e.name)
		}
		c.logger.Info("scheduled daily rule",
			zap.String("rule", e.name),
			zap.String("at", e.at))
	}

	return c, nil
}

// Start begins firing the schedule.
func (c *Coordinator) Start() {
	c.cron.Start()
	c.logger.Info("schedule coordinator started")
}

// Stop halts the schedule and waits for a running job to finish.
func (c *Coordinator) Stop() {
	<-c.cron.Stop().Done()
	c.logger.Info("schedule coordinator stopped")
}

// dayOpen disarms the close guard and resets every symbol's trading state.
func (c *Coordinator) dayOpen() {
	c.logger.Info("day open: resetting trading state")
	c.guard.Disarm()
	c.engine.ResetDay(context.Background())
}

// preClose arms the close guard so late order attempts re-verify the clock.
func (c *Coordinator) preClose() {
	c.logger.Info("pre-close: arming market close guard")
	c.guard.Arm()
}

// postClose cancels outstanding orders (best effort) and disconnects the
// data stream until the pre-open reconnect.
func (c *Coordinator) postClose() {
	c.logger.Info("post close: cancelling open orders")
	if err := c.broker.CancelAllOrders(context.Background()); err != nil {
		c.logger.Warn("couldn't cancel all orders", zap.Error(err))
	}
	if err := c.stream.Disconnect(); err != nil {
		c.logger.Warn("stream disconnect failed", zap.Error(err))
	}
}

// preOpenReconnect re-dials the data stream unless the last known status
// says it is already up.
func (c *Coordinator) preOpenReconnect() {
	if s := c.stream.Status(); s == stream.StatusConnected || s == stream.StatusAuthenticated {
		c.logger.Info("stream already connected, skipping reconnect")
		return
	}
	if err := c.stream.Connect(context.Background()); err != nil {
		c.logger.Warn("scheduled reconnect failed", zap.Error(err))
	}
}

// weekdaySpec converts "HH:MM" into a weekdays-only cron expression.
func weekdaySpec(at string) (string, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return "", errors.Wrapf(err, "expected HH:MM, got %q", at)
	}
	return fmt.Sprintf("%d %d * * MON-FRI", t.Minute(), t.Hour()), nil
}
