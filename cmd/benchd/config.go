package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"arc-framework/benchd/internal/launcher"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config [-- args...]",
	Short: "Print the resolved launch configuration and exit",
	Long: `Config resolves the process configuration the server command would
hand to the runtime (worker pool size, port, boot component and forwarded
arguments), prints it as JSON to stdout and exits without binding a port.`,
	Args: cobra.ArbitraryArgs,
	RunE: runConfig,
}

// launchReport is the JSON printed by the config command.
type launchReport struct {
	WorkerPoolSize int      `json:"workerPoolSize"`
	ListenPort     int      `json:"listenPort"`
	Root           string   `json:"root"`
	Components     []string `json:"components"`
	Stores         []string `json:"stores"`
	Args           []string `json:"args"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	root, err := app.registry.Root()
	if err != nil {
		return err
	}

	// Configure never touches the runtime.
	pc, err := launcher.New(nil, launcherOptions(cfg, nil)...).Configure(root, args)
	if err != nil {
		return err
	}

	components, err := launcher.Discover(pc.Root)
	if err != nil {
		return err
	}

	report := launchReport{
		WorkerPoolSize: pc.WorkerPoolSize,
		ListenPort:     pc.ListenPort,
		Root:           pc.Root.Name(),
		Args:           pc.Args,
	}
	for _, c := range components {
		report.Components = append(report.Components, c.Name())
	}
	for name := range app.stores {
		report.Stores = append(report.Stores, name)
	}
	sort.Strings(report.Stores)

	return printReport(report)
}

func printReport(report launchReport) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding launch configuration: %w", err)
	}
	return nil
}
