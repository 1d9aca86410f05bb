package delivery_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pulsegate/internal/adapters/delivery"
	"github.com/okian/pulsegate/internal/adapters/repository"
	"github.com/okian/pulsegate/internal/adapters/transport"
	"github.com/okian/pulsegate/internal/domain/model"
	"github.com/okian/pulsegate/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func contact(id string, priority model.NotificationPriority) model.Contact {
	return model.Contact{
		ID:       id,
		Name:     "Contact " + id,
		Channel:  model.ChannelSMS,
		Address:  "+1555" + id,
		Priority: priority,
	}
}

func emergency(id string, recipients ...model.Contact) model.EmergencyEvent {
	return model.EmergencyEvent{
		ID:          id,
		Kind:        model.KindExtremeSpike,
		HeartRate:   195,
		DetectedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ConfirmedAt: time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC),
		Recipients:  recipients,
	}
}

type fixture struct {
	clk    *clock.Mock
	store  *repository.MemoryStore
	sender *transport.MemorySender
	queue  *delivery.Queue
}

func newFixture(opts ...delivery.Option) fixture {
	f := fixture{
		clk:    clock.NewMock(),
		store:  repository.NewMemoryStore(),
		sender: transport.NewMemorySender(),
	}
	base := []delivery.Option{
		delivery.WithClock(f.clk),
		delivery.WithRetryPolicy(30*time.Second, 300*time.Second, 0),
	}
	f.queue = delivery.New(f.store, f.sender, append(base, opts...)...)
	return f
}

func TestQueue_EnqueueFanOut(t *testing.T) {
	convey.Convey("Given an empty queue", t, func() {
		f := newFixture()
		ctx := context.Background()

		convey.Convey("When an emergency with two recipients is enqueued", func() {
			em := emergency("em-1",
				contact("a", model.PriorityCritical),
				contact("b", model.PriorityNormal))
			convey.So(f.queue.Enqueue(ctx, em), convey.ShouldBeNil)

			convey.Convey("Then one pending notification exists per recipient, persisted", func() {
				ns := f.queue.Notifications()
				convey.So(ns, convey.ShouldHaveLength, 2)
				for _, n := range ns {
					convey.So(n.Status, convey.ShouldEqual, model.StatusPending)
					convey.So(n.EmergencyID, convey.ShouldEqual, "em-1")
				}

				persisted, err := f.store.LoadAll(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(persisted, convey.ShouldHaveLength, 2)
			})

			convey.Convey("And re-enqueueing the same emergency adds nothing", func() {
				convey.So(f.queue.Enqueue(ctx, em), convey.ShouldBeNil)
				convey.So(f.queue.Notifications(), convey.ShouldHaveLength, 2)
			})
		})

		convey.Convey("When an emergency has no recipients", func() {
			err := f.queue.Enqueue(ctx, emergency("em-2"))

			convey.Convey("Then the caller is told", func() {
				convey.So(errors.Is(err, delivery.ErrNoRecipients), convey.ShouldBeTrue)
			})
		})
	})
}

func TestQueue_DeliveryAndCleanup(t *testing.T) {
	convey.Convey("Given a queue with one pending notification", t, func() {
		f := newFixture()
		ctx := context.Background()
		convey.So(f.queue.Enqueue(ctx, emergency("em-1", contact("a", model.PriorityCritical))), convey.ShouldBeNil)

		convey.Convey("When a cycle runs with a healthy transport", func() {
			f.queue.ProcessCycle(ctx)

			convey.Convey("Then the notification is sent and the transition persisted", func() {
				convey.So(f.sender.Sent(), convey.ShouldHaveLength, 1)
				ns := f.queue.Notifications()
				convey.So(ns, convey.ShouldHaveLength, 1)
				convey.So(ns[0].Status, convey.ShouldEqual, model.StatusSent)

				persisted, err := f.store.LoadAll(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(persisted[0].Status, convey.ShouldEqual, model.StatusSent)
			})

			convey.Convey("And after the grace window cleanup removes it everywhere", func() {
				f.clk.Add(61 * time.Second)
				f.queue.ProcessCycle(ctx)

				convey.So(f.queue.Notifications(), convey.ShouldBeEmpty)
				persisted, err := f.store.LoadAll(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(persisted, convey.ShouldBeEmpty)
			})
		})
	})
}

func TestQueue_PriorityOrderAndBatch(t *testing.T) {
	convey.Convey("Given four queued notifications across priority tiers", t, func() {
		f := newFixture(delivery.WithBatchSize(3))
		ctx := context.Background()

		// Enqueue in reverse priority order with distinct timestamps so
		// ordering cannot be an accident of insertion.
		convey.So(f.queue.Enqueue(ctx, emergency("em-1", contact("d", model.PriorityNormal))), convey.ShouldBeNil)
		f.clk.Add(time.Second)
		convey.So(f.queue.Enqueue(ctx, emergency("em-2", contact("c", model.PriorityHigh))), convey.ShouldBeNil)
		f.clk.Add(time.Second)
		convey.So(f.queue.Enqueue(ctx, emergency("em-3", contact("a", model.PriorityCritical))), convey.ShouldBeNil)
		f.clk.Add(time.Second)
		convey.So(f.queue.Enqueue(ctx, emergency("em-4", contact("b", model.PriorityCritical))), convey.ShouldBeNil)

		convey.Convey("When one cycle runs", func() {
			f.queue.ProcessCycle(ctx)

			convey.Convey("Then at most three send, highest priority first, FIFO within a tier", func() {
				sent := f.sender.Sent()
				convey.So(sent, convey.ShouldHaveLength, 3)
				convey.So(sent[0].Address, convey.ShouldEqual, "+1555a")
				convey.So(sent[1].Address, convey.ShouldEqual, "+1555b")
				convey.So(sent[2].Address, convey.ShouldEqual, "+1555c")
			})

			convey.Convey("And the next cycle picks up the remainder", func() {
				f.queue.ProcessCycle(ctx)
				convey.So(f.sender.Sent(), convey.ShouldHaveLength, 4)
			})
		})
	})
}

func TestQueue_RetryBackoff(t *testing.T) {
	convey.Convey("Given a queue whose transport is failing", t, func() {
		f := newFixture()
		ctx := context.Background()
		f.sender.FailAlways(transport.ErrSendFailed)
		convey.So(f.queue.Enqueue(ctx, emergency("em-1", contact("a", model.PriorityCritical))), convey.ShouldBeNil)

		convey.Convey("When the first attempt fails", func() {
			f.queue.ProcessCycle(ctx)

			convey.Convey("Then the notification waits out its backoff", func() {
				ns := f.queue.Notifications()
				convey.So(ns[0].Status, convey.ShouldEqual, model.StatusFailed)
				convey.So(ns[0].AttemptCount, convey.ShouldEqual, 1)
				convey.So(ns[0].NextRetryAt, convey.ShouldHappenOnOrAfter, f.clk.Now().Add(60*time.Second))

				// A cycle before the retry is due does not touch it.
				f.queue.ProcessCycle(ctx)
				convey.So(f.queue.Notifications()[0].AttemptCount, convey.ShouldEqual, 1)
			})

			convey.Convey("And once due, the transport recovering delivers it", func() {
				f.sender.FailAlways(nil)
				f.clk.Add(60 * time.Second)
				f.queue.ProcessCycle(ctx)

				convey.So(f.sender.Sent(), convey.ShouldHaveLength, 1)
				convey.So(f.queue.Notifications()[0].Status, convey.ShouldEqual, model.StatusSent)
			})
		})
	})
}

func TestQueue_ExpiryAndAck(t *testing.T) {
	convey.Convey("Given a queue with two attempts allowed and a dead transport", t, func() {
		f := newFixture(delivery.WithMaxAttempts(2))
		ctx := context.Background()
		f.sender.FailAlways(transport.ErrSendFailed)
		convey.So(f.queue.Enqueue(ctx, emergency("em-1", contact("a", model.PriorityCritical))), convey.ShouldBeNil)

		convey.Convey("When attempts are exhausted", func() {
			f.queue.ProcessCycle(ctx)
			f.clk.Add(60 * time.Second)
			f.queue.ProcessCycle(ctx)

			convey.Convey("Then the notification expires and is retained", func() {
				ns := f.queue.Notifications()
				convey.So(ns, convey.ShouldHaveLength, 1)
				convey.So(ns[0].Status, convey.ShouldEqual, model.StatusExpired)
				convey.So(ns[0].AttemptCount, convey.ShouldEqual, 2)

				// Hours later it is still there, unlike sent or failed entries.
				f.clk.Add(48 * time.Hour)
				f.queue.ProcessCycle(ctx)
				convey.So(f.queue.Notifications(), convey.ShouldHaveLength, 1)
			})

			convey.Convey("And acknowledging removes it everywhere", func() {
				id := f.queue.Notifications()[0].ID
				convey.So(f.queue.Ack(ctx, id), convey.ShouldBeNil)
				convey.So(f.queue.Notifications(), convey.ShouldBeEmpty)

				persisted, err := f.store.LoadAll(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(persisted, convey.ShouldBeEmpty)

				convey.So(errors.Is(f.queue.Ack(ctx, id), delivery.ErrUnknownNotification), convey.ShouldBeTrue)
			})
		})
	})
}

// gatedSender blocks each send until released so a test can interleave
// queue operations with an in-flight delivery.
type gatedSender struct {
	entered chan struct{}
	release chan struct{}
}

func newGatedSender() *gatedSender {
	return &gatedSender{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (s *gatedSender) Send(_ context.Context, _ string, _ model.NotificationChannel, _ string) error {
	s.entered <- struct{}{}
	<-s.release
	return nil
}

func TestQueue_AckDuringInFlightSend(t *testing.T) {
	convey.Convey("Given a queue with a send in flight", t, func() {
		clk := clock.NewMock()
		store := repository.NewMemoryStore()
		sender := newGatedSender()
		q := delivery.New(store, sender,
			delivery.WithClock(clk),
			delivery.WithRetryPolicy(30*time.Second, 300*time.Second, 0))
		ctx := context.Background()
		convey.So(q.Enqueue(ctx, emergency("em-1", contact("a", model.PriorityCritical))), convey.ShouldBeNil)
		id := q.Notifications()[0].ID

		done := make(chan struct{})
		go func() {
			q.ProcessCycle(ctx)
			close(done)
		}()
		<-sender.entered

		convey.Convey("When the notification is acknowledged before the send returns", func() {
			convey.So(q.Ack(ctx, id), convey.ShouldBeNil)
			close(sender.release)
			<-done

			convey.Convey("Then the completed send does not resurrect the store record", func() {
				convey.So(q.Notifications(), convey.ShouldBeEmpty)

				persisted, err := store.LoadAll(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(persisted, convey.ShouldBeEmpty)

				// A restart sees nothing to restore.
				restarted := delivery.New(store, transport.NewMemorySender(), delivery.WithClock(clk))
				convey.So(restarted.Restore(ctx), convey.ShouldBeNil)
				convey.So(restarted.Notifications(), convey.ShouldBeEmpty)
			})
		})
	})
}

func TestQueue_OfflineDefersSending(t *testing.T) {
	convey.Convey("Given a queue that has gone offline", t, func() {
		f := newFixture()
		ctx := context.Background()
		f.queue.ConnectivityChanged(false)
		convey.So(f.queue.Enqueue(ctx, emergency("em-1", contact("a", model.PriorityCritical))), convey.ShouldBeNil)

		convey.Convey("When cycles run offline", func() {
			f.queue.ProcessCycle(ctx)
			f.queue.ProcessCycle(ctx)

			convey.Convey("Then nothing is attempted", func() {
				convey.So(f.sender.Sent(), convey.ShouldBeEmpty)
				convey.So(f.queue.Notifications()[0].Status, convey.ShouldEqual, model.StatusPending)
				convey.So(f.queue.Stats().Online, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When connectivity returns", func() {
			f.queue.ConnectivityChanged(true)
			f.queue.ProcessCycle(ctx)

			convey.Convey("Then the backlog flushes", func() {
				convey.So(f.sender.Sent(), convey.ShouldHaveLength, 1)
			})
		})
	})
}

func TestQueue_RestoreAfterRestart(t *testing.T) {
	convey.Convey("Given a store left behind by a crashed process", t, func() {
		clk := clock.NewMock()
		store := repository.NewMemoryStore()
		ctx := context.Background()

		base := clk.Now()
		seed := []model.QueuedNotification{
			{
				ID: "n-pending", EmergencyID: "em-1", RecipientID: "a",
				Channel: model.ChannelSMS, Address: "+1555a",
				Priority: model.PriorityCritical, Status: model.StatusPending,
				EnqueuedAt: base,
			},
			{
				ID: "n-midflight", EmergencyID: "em-1", RecipientID: "b",
				Channel: model.ChannelSMS, Address: "+1555b",
				Priority: model.PriorityHigh, Status: model.StatusSending,
				AttemptCount: 1, EnqueuedAt: base,
			},
			{
				ID: "n-stale-sent", EmergencyID: "em-1", RecipientID: "c",
				Channel: model.ChannelSMS, Address: "+1555c",
				Priority: model.PriorityNormal, Status: model.StatusSent,
				EnqueuedAt: base, SentAt: base.Add(-2 * time.Minute),
			},
		}
		for _, n := range seed {
			convey.So(store.Save(ctx, n), convey.ShouldBeNil)
		}

		convey.Convey("When a fresh queue restores from it", func() {
			sender := transport.NewMemorySender()
			q := delivery.New(store, sender,
				delivery.WithClock(clk),
				delivery.WithRetryPolicy(30*time.Second, 300*time.Second, 0))
			convey.So(q.Restore(ctx), convey.ShouldBeNil)

			convey.Convey("Then mid-flight resets to pending and stale sent is dropped", func() {
				ns := q.Notifications()
				convey.So(ns, convey.ShouldHaveLength, 2)
				byID := map[string]model.QueuedNotification{}
				for _, n := range ns {
					byID[n.ID] = n
				}
				convey.So(byID["n-midflight"].Status, convey.ShouldEqual, model.StatusPending)
				convey.So(byID["n-pending"].Status, convey.ShouldEqual, model.StatusPending)

				persisted, err := store.LoadAll(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(persisted, convey.ShouldHaveLength, 2)
			})

			convey.Convey("And restored entries still dedupe against re-enqueues", func() {
				em := emergency("em-1",
					contact("a", model.PriorityCritical),
					contact("b", model.PriorityHigh))
				convey.So(q.Enqueue(ctx, em), convey.ShouldBeNil)
				convey.So(q.Notifications(), convey.ShouldHaveLength, 2)
			})

			convey.Convey("And the next cycle delivers the restored backlog", func() {
				q.ProcessCycle(ctx)
				convey.So(sender.Sent(), convey.ShouldHaveLength, 2)
			})
		})
	})
}
