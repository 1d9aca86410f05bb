package gate_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pulsegate/internal/domain/gate"
	"github.com/okian/pulsegate/internal/domain/model"
	"github.com/okian/pulsegate/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type captureSink struct {
	mu     sync.Mutex
	events []model.EmergencyEvent
}

func (s *captureSink) EmergencyConfirmed(_ context.Context, e model.EmergencyEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *captureSink) all() []model.EmergencyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.EmergencyEvent, len(s.events))
	copy(out, s.events)
	return out
}

func detection(kind model.DetectionKind, hr int) model.DetectionEvent {
	return model.DetectionEvent{
		Kind:       kind,
		HeartRate:  hr,
		DetectedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestGate_SilenceConfirms(t *testing.T) {
	convey.Convey("Given an idle gate with a 15s window", t, func() {
		mock := clock.NewMock()
		sink := &captureSink{}
		g := gate.New(
			gate.WithClock(mock),
			gate.WithWindow(15*time.Second),
			gate.WithSink(sink),
		)
		ctx := context.Background()

		convey.Convey("When a detection arrives and nobody responds", func() {
			accepted := g.Offer(ctx, detection(model.KindHighThreshold, 160))
			convey.So(accepted, convey.ShouldBeTrue)
			convey.So(g.Snapshot().State, convey.ShouldEqual, gate.StateAwaitingConfirmation)

			mock.Add(14 * time.Second)
			convey.So(sink.all(), convey.ShouldBeEmpty)

			mock.Add(time.Second)

			convey.Convey("Then the countdown expiry escalates to an emergency", func() {
				events := sink.all()
				convey.So(events, convey.ShouldHaveLength, 1)
				convey.So(events[0].Kind, convey.ShouldEqual, model.KindHighThreshold)
				convey.So(events[0].HeartRate, convey.ShouldEqual, 160)
				convey.So(events[0].ID, convey.ShouldNotBeEmpty)

				snap := g.Snapshot()
				convey.So(snap.State, convey.ShouldEqual, gate.StateIdle)
				convey.So(snap.LastOutcome, convey.ShouldEqual, gate.StateConfirmed)
			})
		})
	})
}

func TestGate_CancelStandsDown(t *testing.T) {
	convey.Convey("Given a gate with a pending alert", t, func() {
		mock := clock.NewMock()
		sink := &captureSink{}
		g := gate.New(gate.WithClock(mock), gate.WithSink(sink))
		ctx := context.Background()
		g.Offer(ctx, detection(model.KindRapidIncrease, 130))

		convey.Convey("When the wearer cancels before the deadline", func() {
			convey.So(g.Cancel(ctx), convey.ShouldBeNil)
			mock.Add(time.Minute)

			convey.Convey("Then no emergency is ever raised", func() {
				convey.So(sink.all(), convey.ShouldBeEmpty)
				snap := g.Snapshot()
				convey.So(snap.State, convey.ShouldEqual, gate.StateIdle)
				convey.So(snap.LastOutcome, convey.ShouldEqual, gate.StateCancelled)
			})
		})
	})
}

func TestGate_ManualConfirm(t *testing.T) {
	convey.Convey("Given a gate with a pending alert", t, func() {
		mock := clock.NewMock()
		sink := &captureSink{}
		g := gate.New(gate.WithClock(mock), gate.WithSink(sink))
		ctx := context.Background()
		g.Offer(ctx, detection(model.KindExtremeSpike, 190))

		convey.Convey("When the alert is confirmed explicitly", func() {
			convey.So(g.Confirm(ctx), convey.ShouldBeNil)

			convey.Convey("Then the emergency fires without waiting for the countdown", func() {
				events := sink.all()
				convey.So(events, convey.ShouldHaveLength, 1)
				convey.So(events[0].Kind, convey.ShouldEqual, model.KindExtremeSpike)
			})

			convey.Convey("And the expired timer cannot double-fire", func() {
				mock.Add(time.Minute)
				convey.So(sink.all(), convey.ShouldHaveLength, 1)
			})
		})
	})
}

func TestGate_PriorityReplacement(t *testing.T) {
	convey.Convey("Given a gate holding a high-threshold alert", t, func() {
		mock := clock.NewMock()
		sink := &captureSink{}
		g := gate.New(
			gate.WithClock(mock),
			gate.WithWindow(15*time.Second),
			gate.WithSink(sink),
		)
		ctx := context.Background()
		g.Offer(ctx, detection(model.KindHighThreshold, 160))
		mock.Add(10 * time.Second)

		convey.Convey("When an equal or lower priority detection arrives", func() {
			convey.So(g.Offer(ctx, detection(model.KindHighThreshold, 165)), convey.ShouldBeFalse)
			convey.So(g.Offer(ctx, detection(model.KindLowThreshold, 35)), convey.ShouldBeFalse)

			convey.Convey("Then the pending alert and its deadline are untouched", func() {
				snap := g.Snapshot()
				convey.So(snap.Pending.HeartRate, convey.ShouldEqual, 160)
				convey.So(snap.Remaining, convey.ShouldEqual, 5*time.Second)
			})
		})

		convey.Convey("When a higher-priority detection arrives", func() {
			convey.So(g.Offer(ctx, detection(model.KindExtremeSpike, 200)), convey.ShouldBeTrue)

			convey.Convey("Then the countdown restarts for the replacement", func() {
				// The original deadline passes with nothing fired.
				mock.Add(10 * time.Second)
				convey.So(sink.all(), convey.ShouldBeEmpty)

				mock.Add(5 * time.Second)
				events := sink.all()
				convey.So(events, convey.ShouldHaveLength, 1)
				convey.So(events[0].Kind, convey.ShouldEqual, model.KindExtremeSpike)
			})
		})
	})
}

type captureListener struct {
	ticks    chan time.Duration
	resolved chan gate.Resolution
}

func newCaptureListener() *captureListener {
	return &captureListener{
		ticks:    make(chan time.Duration, 64),
		resolved: make(chan gate.Resolution, 4),
	}
}

func (l *captureListener) CountdownTick(_ model.DetectionEvent, remaining time.Duration) {
	select {
	case l.ticks <- remaining:
	default:
	}
}

func (l *captureListener) AlertResolved(_ gate.State, how gate.Resolution) {
	l.resolved <- how
}

func TestGate_Listeners(t *testing.T) {
	convey.Convey("Given a gate with a subscribed listener", t, func() {
		mock := clock.NewMock()
		g := gate.New(gate.WithClock(mock), gate.WithWindow(15*time.Second))
		ctx := context.Background()
		l := newCaptureListener()
		cancel := g.Subscribe(l)

		convey.Convey("When an alert is pending and time passes", func() {
			g.Offer(ctx, detection(model.KindHighThreshold, 160))
			mock.Add(3 * time.Second)

			convey.Convey("Then countdown ticks reach the listener", func() {
				select {
				case remaining := <-l.ticks:
					convey.So(remaining, convey.ShouldBeLessThanOrEqualTo, 15*time.Second)
				case <-time.After(time.Second):
					t.Fatal("no countdown tick observed")
				}
			})
		})

		convey.Convey("When the pending alert is cancelled", func() {
			g.Offer(ctx, detection(model.KindHighThreshold, 160))
			convey.So(g.Cancel(ctx), convey.ShouldBeNil)

			convey.Convey("Then the listener hears the resolution", func() {
				select {
				case how := <-l.resolved:
					convey.So(how, convey.ShouldEqual, gate.ResolutionCancelled)
				case <-time.After(time.Second):
					t.Fatal("no resolution observed")
				}
			})
		})

		convey.Convey("When the listener unsubscribes", func() {
			cancel()
			g.Offer(ctx, detection(model.KindHighThreshold, 160))
			convey.So(g.Cancel(ctx), convey.ShouldBeNil)

			convey.Convey("Then no further callbacks arrive", func() {
				select {
				case <-l.resolved:
					t.Fatal("unsubscribed listener still notified")
				case <-time.After(50 * time.Millisecond):
				}
			})
		})
	})
}

func TestGate_NoPendingAlert(t *testing.T) {
	convey.Convey("Given an idle gate", t, func() {
		g := gate.New(gate.WithClock(clock.NewMock()))
		ctx := context.Background()

		convey.Convey("Then confirm and cancel report the empty slot", func() {
			convey.So(g.Confirm(ctx), convey.ShouldEqual, gate.ErrNoPendingAlert)
			convey.So(g.Cancel(ctx), convey.ShouldEqual, gate.ErrNoPendingAlert)
		})
	})
}
