package perf

import (
	"fmt"
	"os"
	"strings"

	"github.com/cyyever/largedict/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfConfig = DefaultConfig()

	// PerfCmd runs a load benchmark against a local LargeDict
	PerfCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for largedict",
		Long: `Runs a load benchmark against a LargeDict: every key is set, flushed,
read back cold and hot, mixed and deleted. The dictionary keeps at most
--watermark values in memory, so most reads go to the storage backend.`,
		PreRunE: processPerfConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	util.SetupBackendFlags(PerfCmd, util.BackendDisk)

	key := "keys"
	PerfCmd.Flags().Int(key, perfConfig.Keys, util.WrapString("How many different keys to use for the tests"))
	key = "value-size"
	PerfCmd.Flags().Int(key, perfConfig.ValueSizeKB, util.WrapString("Size of every value (in KB)"))
	key = "threads"
	PerfCmd.Flags().Int(key, perfConfig.Threads, util.WrapString("Number of threads to use for the benchmark"))
	key = "watermark"
	PerfCmd.Flags().Int(key, perfConfig.Watermark, util.WrapString("Maximum number of values kept in memory"))
	key = "write-workers"
	PerfCmd.Flags().Int(key, perfConfig.WriteWorkers, util.WrapString("Number of background save workers"))
	key = "read-workers"
	PerfCmd.Flags().Int(key, perfConfig.ReadWorkers, util.WrapString("Number of background load workers"))
	key = "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. get-hot,mixed)"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfConfig.Backend = viper.GetString("backend")
	perfConfig.Path = viper.GetString("path")
	perfConfig.Keys = viper.GetInt("keys")
	perfConfig.ValueSizeKB = viper.GetInt("value-size")
	perfConfig.Threads = viper.GetInt("threads")
	perfConfig.Watermark = viper.GetInt("watermark")
	perfConfig.WriteWorkers = viper.GetInt("write-workers")
	perfConfig.ReadWorkers = viper.GetInt("read-workers")
	perfConfig.Skip = nil
	if skip := viper.GetString("skip"); skip != "" {
		perfConfig.Skip = strings.Split(skip, ",")
	}

	return perfConfig.Validate()
}

func run(_ *cobra.Command, _ []string) error {
	results, err := Run(perfConfig, os.Stdout)
	if err != nil {
		return err
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := WriteCSV(csvPath, results, perfConfig); err != nil {
			return fmt.Errorf("failed to export results to CSV: %w", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}
