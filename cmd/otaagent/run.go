package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/otaagent/pkg/catalog"
	"github.com/cuemby/otaagent/pkg/config"
	"github.com/cuemby/otaagent/pkg/host"
	"github.com/cuemby/otaagent/pkg/loader"
	"github.com/cuemby/otaagent/pkg/log"
	"github.com/cuemby/otaagent/pkg/metrics"
	"github.com/cuemby/otaagent/pkg/orchestrator"
	"github.com/cuemby/otaagent/pkg/staging"
	"github.com/cuemby/otaagent/pkg/verify"
	"github.com/cuemby/otaagent/pkg/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the update agent's tick loop until signalled to stop",
	RunE:  runAgent,
}

func init() {
	runCmd.Flags().Duration("tick-interval", time.Second, "Interval between orchestrator ticks")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve Prometheus metrics on ('' disables)")
}

func runAgent(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	tickInterval, _ := cmd.Flags().GetDuration("tick-interval")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	catalogClient := catalog.New(cfg.CatalogBaseURL, cfg.CatalogBearerToken, cfg.MaxArtifactSize, cfg.ManifestTimeout, cfg.ArtifactTimeout)

	verifier, err := verify.New(cfg.MaxArtifactSize, cfg.SignatureRequired, cfg.SigningPublicKeyPEM)
	if err != nil {
		return fmt.Errorf("build verifier: %w", err)
	}

	stagingStore, err := staging.Open(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open staging store: %w", err)
	}
	defer stagingStore.Close()

	tracker := version.New()
	hostAPI := newAgentHostAPI(tracker)
	moduleLoader := loader.New(cfg.MaxModules, hostAPI)
	collaborator := host.NewSimulator()

	orchCfg := orchestrator.Config{
		CheckInterval:        cfg.CheckInterval,
		PostCommitGrace:      cfg.PostCommitGrace,
		FailureDisplayWindow: cfg.FailureDisplayWindow,
		DownloadRetries:      cfg.DownloadRetries,
		CancelGracePeriod:    cfg.CancelGracePeriod,
		MaxArtifactSize:      cfg.MaxArtifactSize,
	}
	orch := orchestrator.New(orchCfg, catalogClient, verifier, stagingStore, moduleLoader, tracker, collaborator)

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			log.Info(fmt.Sprintf("metrics endpoint listening on %s", metricsAddr))
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Errorf("metrics server stopped", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	log.Info(fmt.Sprintf("otaagent started: device_id=%s catalog=%s", cfg.DeviceID, cfg.CatalogBaseURL))

	for {
		select {
		case <-ctx.Done():
			log.Info("otaagent shutting down")
			return nil
		case now := <-ticker.C:
			orch.Tick(now)
		}
	}
}
