package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pulsegate/internal/adapters/delivery"
	"github.com/okian/pulsegate/internal/adapters/netmon"
	"github.com/okian/pulsegate/internal/adapters/repository"
	"github.com/okian/pulsegate/internal/adapters/transport"
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

var testContacts = []model.Contact{
	{ID: "spouse", Name: "Alex", Channel: model.ChannelPush, Address: "device-1", Priority: model.PriorityCritical},
	{ID: "doctor", Name: "Dr. Lee", Channel: model.ChannelEmail, Address: "lee@clinic.example", Priority: model.PriorityHigh},
}

type harness struct {
	svc    *Service
	clk    *clock.Mock
	sender *transport.MemorySender
	store  *repository.MemoryStore
}

func startService(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clk:    clock.NewMock(),
		sender: transport.NewMemorySender(),
		store:  repository.NewMemoryStore(),
	}
	base := []Option{
		WithClock(h.clk),
		WithStore(h.store),
		WithSender(h.sender),
		WithContacts(testContacts),
		WithQueueOptions(delivery.WithRetryPolicy(30*time.Second, 300*time.Second, 0)),
		WithMonitorOptions(netmon.WithProber(func(context.Context) bool { return true })),
	}
	h.svc = New(append(base, opts...)...)
	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(h.svc.Stop)
	return h
}

// eventually polls until cond holds or the deadline passes. The queue runs
// on its own goroutine, so delivery is asynchronous even under a mock clock.
func eventually(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func sampleAt(value int, offset time.Duration) model.HeartRateSample {
	return model.HeartRateSample{
		Value: value,
		TS:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(offset),
	}
}

func TestService_EmergencyFlow(t *testing.T) {
	convey.Convey("Given a running service with registered contacts", t, func() {
		h := startService(t)
		ctx := context.Background()

		convey.Convey("When a sample breaches the high threshold and nobody cancels", func() {
			ev := h.svc.IngestSample(ctx, sampleAt(170, 0))
			convey.So(ev, convey.ShouldNotBeNil)
			convey.So(h.svc.Alert().State, convey.ShouldEqual, gate.StateAwaitingConfirmation)

			h.clk.Add(15 * time.Second)

			convey.Convey("Then every contact receives a notification", func() {
				ok := eventually(t, func() bool { return len(h.sender.Sent()) == 2 })
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(h.svc.Alert().State, convey.ShouldEqual, gate.StateIdle)
				convey.So(h.svc.Alert().LastOutcome, convey.ShouldEqual, gate.StateConfirmed)
			})
		})

		convey.Convey("When the wearer cancels during the countdown", func() {
			convey.So(h.svc.IngestSample(ctx, sampleAt(170, 0)), convey.ShouldNotBeNil)
			convey.So(h.svc.CancelAlert(ctx), convey.ShouldBeNil)
			h.clk.Add(time.Minute)

			convey.Convey("Then no notification is ever sent", func() {
				convey.So(h.sender.Sent(), convey.ShouldBeEmpty)
				convey.So(h.svc.Notifications(), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When a normal sample arrives", func() {
			convey.So(h.svc.IngestSample(ctx, sampleAt(75, 0)), convey.ShouldBeNil)

			convey.Convey("Then the gate stays idle", func() {
				convey.So(h.svc.Alert().State, convey.ShouldEqual, gate.StateIdle)
			})
		})
	})
}

func TestService_ManualConfirm(t *testing.T) {
	convey.Convey("Given a pending alert", t, func() {
		h := startService(t)
		ctx := context.Background()
		convey.So(h.svc.IngestSample(ctx, sampleAt(35, 0)), convey.ShouldNotBeNil)

		convey.Convey("When it is confirmed explicitly", func() {
			convey.So(h.svc.ConfirmAlert(ctx), convey.ShouldBeNil)

			convey.Convey("Then notifications go out without waiting for the countdown", func() {
				ok := eventually(t, func() bool { return len(h.sender.Sent()) == 2 })
				convey.So(ok, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When confirm is called with nothing pending", func() {
			convey.So(h.svc.ConfirmAlert(ctx), convey.ShouldBeNil)
			err := h.svc.ConfirmAlert(ctx)

			convey.Convey("Then the gate reports the empty slot", func() {
				convey.So(errors.Is(err, gate.ErrNoPendingAlert), convey.ShouldBeTrue)
			})
		})
	})
}

func TestService_RulesAndContacts(t *testing.T) {
	convey.Convey("Given a running service", t, func() {
		h := startService(t)

		convey.Convey("When rules are replaced at runtime", func() {
			rules := h.svc.Rules()
			rules.HighThresholdBPM = 120
			convey.So(h.svc.SetRules(rules), convey.ShouldBeNil)

			convey.Convey("Then the next sample sees the new threshold", func() {
				ev := h.svc.IngestSample(context.Background(), sampleAt(125, 0))
				convey.So(ev, convey.ShouldNotBeNil)
				convey.So(ev.Kind, convey.ShouldEqual, model.KindHighThreshold)
			})
		})

		convey.Convey("When an invalid rule set is submitted", func() {
			rules := h.svc.Rules()
			rules.LowThresholdBPM = 500
			err := h.svc.SetRules(rules)

			convey.Convey("Then it is rejected and the old rules survive", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(h.svc.Rules().LowThresholdBPM, convey.ShouldEqual, 40)
			})
		})

		convey.Convey("When contacts are replaced", func() {
			next := []model.Contact{
				{ID: "neighbor", Channel: model.ChannelSMS, Address: "+15550123", Priority: model.PriorityNormal},
			}
			convey.So(h.svc.SetContacts(next), convey.ShouldBeNil)
			convey.So(h.svc.Contacts(), convey.ShouldHaveLength, 1)
		})

		convey.Convey("When a contact is malformed", func() {
			cases := [][]model.Contact{
				{{ID: "", Channel: model.ChannelSMS, Address: "+1", Priority: model.PriorityNormal}},
				{{ID: "x", Channel: model.ChannelSMS, Address: "", Priority: model.PriorityNormal}},
				{{ID: "x", Channel: "fax", Address: "+1", Priority: model.PriorityNormal}},
				{{ID: "x", Channel: model.ChannelSMS, Address: "+1", Priority: "urgent"}},
			}
			for _, contacts := range cases {
				convey.So(errors.Is(h.svc.SetContacts(contacts), ErrInvalidContact), convey.ShouldBeTrue)
			}
		})
	})
}

func TestService_Stats(t *testing.T) {
	convey.Convey("Given a running service", t, func() {
		h := startService(t)

		convey.Convey("Then stats expose the pipeline state", func() {
			stats := h.svc.GetStats()
			convey.So(stats["started"], convey.ShouldBeTrue)
			convey.So(stats["contacts"], convey.ShouldEqual, 2)
			convey.So(stats["online"], convey.ShouldBeTrue)
			convey.So(stats, convey.ShouldContainKey, "alert")
			convey.So(stats, convey.ShouldContainKey, "queue")
			convey.So(stats, convey.ShouldContainKey, "rules")
		})
	})
}

func TestService_StartStopIdempotent(t *testing.T) {
	h := startService(t)

	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	h.svc.Stop()
	h.svc.Stop()
}
