package main

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/okian/pulsegate/internal/adapters/http/api"
	"github.com/okian/pulsegate/internal/adapters/http/swagger"
	service "github.com/okian/pulsegate/internal/app"
	"github.com/okian/pulsegate/internal/config"
	"github.com/okian/pulsegate/internal/domain/model"
	"github.com/okian/pulsegate/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestConfigurationWiring(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When loading configuration from the environment", func() {
			_ = os.Setenv("PULSEGATE_ADDR", ":8080")
			_ = os.Setenv("PULSEGATE_HIGH_THRESHOLD_BPM", "160")
			_ = os.Setenv("PULSEGATE_MAX_ATTEMPTS", "7")
			defer func() {
				_ = os.Unsetenv("PULSEGATE_ADDR")
				_ = os.Unsetenv("PULSEGATE_HIGH_THRESHOLD_BPM")
				_ = os.Unsetenv("PULSEGATE_MAX_ATTEMPTS")
			}()

			ctx := context.Background()
			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.HighThresholdBPM, convey.ShouldEqual, 160)
			convey.So(cfg.MaxAttempts, convey.ShouldEqual, 7)

			convey.Convey("Then the detection rules mirror the config fields", func() {
				rules := rulesFromConfig(cfg)
				convey.So(rules.HighThresholdBPM, convey.ShouldEqual, 160)
				convey.So(rules.LowThresholdBPM, convey.ShouldEqual, cfg.LowThresholdBPM)
				convey.So(rules.RapidIncreaseWindow, convey.ShouldEqual, time.Duration(cfg.RapidIncreaseWindowSec)*time.Second)
				convey.So(rules.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When converting configured contacts", func() {
			contacts := contactsFromConfig([]config.ContactConfig{
				{ID: "spouse", Name: "Alex", Channel: "push", Address: "device-1", Priority: "critical"},
				{ID: "doctor", Channel: "email", Address: "doc@example.com", Priority: "high"},
			})

			convey.Convey("Then each entry maps onto a domain contact", func() {
				convey.So(len(contacts), convey.ShouldEqual, 2)
				convey.So(contacts[0].Channel, convey.ShouldEqual, model.ChannelPush)
				convey.So(contacts[0].Priority, convey.ShouldEqual, model.PriorityCritical)
				convey.So(contacts[1].ID, convey.ShouldEqual, "doctor")
				convey.So(contacts[1].Channel, convey.ShouldEqual, model.ChannelEmail)
				convey.So(contacts[1].Priority, convey.ShouldEqual, model.PriorityHigh)
			})
		})

		convey.Convey("When the environment carries an invalid address", func() {
			_ = os.Setenv("PULSEGATE_ADDR", "")
			defer func() { _ = os.Unsetenv("PULSEGATE_ADDR") }()

			convey.Convey("Then configuration loading fails", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestApplicationSetup(t *testing.T) {
	convey.Convey("Given the application components", t, func() {
		convey.Convey("When assembling without starting", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldBeNil)

			svc := service.New(
				service.WithRules(rulesFromConfig(cfg)),
				service.WithConfirmationWindow(time.Duration(cfg.ConfirmationWindowSec)*time.Second),
				service.WithContacts(contactsFromConfig(cfg.Contacts)),
			)
			convey.So(svc, convey.ShouldNotBeNil)

			mux := http.NewServeMux()
			api.NewServer(svc, svc).Register(ctx, mux)
			swagger.Register(ctx, mux)

			convey.Convey("Then stats are available before start", func() {
				stats := svc.GetStats()
				convey.So(stats, convey.ShouldNotBeNil)
				convey.So(stats["started"], convey.ShouldBeFalse)
			})

			// Stop on an unstarted service is a no-op.
			svc.Stop()
		})
	})
}

func TestSystemMetricsUpdater(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("When running against a short-lived context", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})

		convey.Convey("When updating system metrics directly", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})
	})
}
