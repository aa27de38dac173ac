package inspect

import (
	"errors"
	"fmt"
	"os"

	"github.com/cyyever/largedict/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// InspectCmd lists the blobs of a storage location
	InspectCmd = &cobra.Command{
		Use:   "inspect",
		Short: "List the blobs of a largedict storage directory or database",
		Long: `Lists every blob of a storage location with its key and size. The location
must not be in use: a directory is locked by the dict that owns it.`,
		PreRunE: processInspectConfig,
		RunE:    run,
	}
)

func init() {
	util.SetupBackendFlags(InspectCmd, util.BackendDisk)

	key := "keys"
	InspectCmd.Flags().String(key, KeysInt, util.WrapString(fmt.Sprintf("How blob names are parsed into keys (%s, %s)", KeysInt, KeysString)))
	key = "json"
	InspectCmd.Flags().Bool(key, false, util.WrapString("Print the report as JSON"))
}

func processInspectConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if viper.GetString("path") == "" {
		return errors.New("--path is required")
	}
	if viper.GetString("backend") == util.BackendMemory {
		return errors.New("the mem backend has nothing to inspect")
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	path := viper.GetString("path")
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot inspect %s: %w", path, err)
	}

	backend, _, err := util.OpenBackend(viper.GetString("backend"), path)
	if err != nil {
		return err
	}
	defer backend.Close()

	report, err := Inventory(backend, viper.GetString("keys"))
	if err != nil {
		return err
	}

	if viper.GetBool("json") {
		return report.WriteJSON(os.Stdout)
	}
	return report.WriteText(os.Stdout)
}
