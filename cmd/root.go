package cmd

import (
	"fmt"
	"os"

	"github.com/cyyever/largedict/cmd/inspect"
	"github.com/cyyever/largedict/cmd/perf"
	"github.com/cyyever/largedict/cmd/util"
	"github.com/cyyever/largedict/lib/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "ldict",
		Short: "tooling for disk backed large dictionaries",
		Long: fmt.Sprintf(`ldict (v%s)

Developer tooling for largedict, a key-value dictionary that keeps a bounded
number of entries in memory and spills the rest to a storage directory.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ldict",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ldict v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(inspect.InspectCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("The level at which logs will be output (debug, info, warn, error)"))
}

// setup loads the configuration and initializes the loggers for every command
func setup(cmd *cobra.Command, _ []string) error {
	util.InitConfig()
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
