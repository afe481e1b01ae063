package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/otaagent/pkg/config"
	"github.com/cuemby/otaagent/pkg/loader"
	"github.com/cuemby/otaagent/pkg/staging"
	"github.com/cuemby/otaagent/pkg/version"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Load each module's active slot and print its reported version",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	stagingStore, err := staging.Open(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open staging store: %w", err)
	}
	defer stagingStore.Close()

	recoveries, err := stagingStore.Recover()
	if err != nil {
		return fmt.Errorf("recover staging store: %w", err)
	}
	if len(recoveries) == 0 {
		fmt.Println("no modules installed")
		return nil
	}

	tracker := version.New()
	hostAPI := newAgentHostAPI(tracker)
	moduleLoader := loader.New(len(recoveries), hostAPI)

	for _, rec := range recoveries {
		data, err := stagingStore.Read(rec.Module, "active")
		if err != nil {
			fmt.Printf("%-20s  not installed\n", rec.Module)
			continue
		}
		v, err := moduleLoader.Load(rec.Module, data)
		if err != nil {
			fmt.Printf("%-20s  load failed: %v\n", rec.Module, err)
			continue
		}
		fmt.Printf("%-20s  %s\n", rec.Module, v)
		_ = moduleLoader.Unload(rec.Module)
	}
	return nil
}
