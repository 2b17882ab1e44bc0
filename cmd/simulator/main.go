package main // spot simulator fleet

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iliyamo/smart-parking/internal/client"
	"github.com/iliyamo/smart-parking/internal/config"
	"github.com/iliyamo/smart-parking/internal/logging"
	"github.com/iliyamo/smart-parking/internal/metrics"
	"github.com/iliyamo/smart-parking/internal/model"
	"github.com/iliyamo/smart-parking/internal/router"
	"github.com/iliyamo/smart-parking/internal/simulator"
	"github.com/iliyamo/smart-parking/internal/spot"
)

func main() {
	cfg := config.LoadSimulator()
	logger := logging.Setup("parking-simulator", cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	central, err := client.NewCentral(client.Config{
		BaseURL: cfg.CentralURL,
		Token:   cfg.CentralToken,
		RPS:     cfg.StatusRPS,
	})
	if err != nil {
		logger.Error("central client", slog.Any("error", err))
		os.Exit(1)
	}

	spots, err := loadSpots(ctx, cfg, central, logger)
	if err != nil {
		logger.Error("no spots to simulate", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		router.RegisterRoutes(e, nil)
		router.RegisterMetrics(e, reg)
		go func() {
			if err := e.Start(cfg.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics listener stopped", slog.Any("error", err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = e.Shutdown(sctx)
		}()
	}

	fleet := simulator.NewFleet(simulator.Config{
		RabbitURL:    cfg.RabbitURL,
		Exchange:     cfg.Exchange,
		PollInterval: cfg.PollInterval,
		LeadTime:     cfg.LeadTime,
		Ambient: spot.AmbientConfig{
			Enabled: cfg.Ambient,
			Arrive:  spot.Dwell{Min: cfg.ArriveMin, Max: cfg.ArriveMax},
			Stay:    spot.Dwell{Min: cfg.StayMin, Max: cfg.StayMax},
			Leave:   spot.Dwell{Min: cfg.LeaveMin, Max: cfg.LeaveMax},
			Seed:    cfg.Seed,
		},
		ReconnectTries: cfg.ReconnectTries,
		ReconnectWait:  cfg.ReconnectWait,
		ReconnectMax:   cfg.ReconnectMax,
	}, central, simulator.WithLogger(logger), simulator.WithMetrics(m))

	err = fleet.Run(ctx, spots)
	if err != nil {
		logger.Error("simulator finished with failed spots", slog.Any("error", err))
	}
	logger.Info("simulator stopped")
	if err != nil && ctx.Err() == nil {
		// Every spot died on its own; let the supervisor restart us.
		os.Exit(1)
	}
}

// loadSpots reads the manifest when one is configured, otherwise asks the
// central API, retrying while it comes up.
func loadSpots(ctx context.Context, cfg config.SimulatorConfig, central *client.Central, logger *slog.Logger) ([]model.Spot, error) {
	if cfg.SpotsFile != "" {
		spots, err := simulator.LoadManifest(cfg.SpotsFile)
		if err != nil {
			return nil, err
		}
		spots = simulator.OnFloor(spots, cfg.FloorFilter)
		if len(spots) == 0 {
			return nil, errors.New("manifest has no spots on the selected floor")
		}
		return spots, nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.MaxElapsedTime = 2 * time.Minute
	var spots []model.Spot
	op := func() error {
		list, err := central.ListSpots(ctx, cfg.FloorFilter)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return backoff.Permanent(errors.New("central API returned no spots"))
		}
		spots = list
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("listing spots failed; retrying", slog.Any("error", err), slog.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(exp, ctx), notify); err != nil {
		return nil, err
	}
	return spots, nil
}
