package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyyever/largedict/lib/storage"
	"github.com/cyyever/largedict/lib/storage/diskstore"
	"github.com/cyyever/largedict/lib/storage/memstore"
	"github.com/cyyever/largedict/lib/storage/sqlitestore"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// Names of the storage backends selectable with --backend
const (
	BackendDisk   = "disk"
	BackendSQLite = "sqlite"
	BackendMemory = "mem"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read LDICT_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("ldict")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// SetupBackendFlags adds the storage selection flags to a command
func SetupBackendFlags(cmd *cobra.Command, defaultBackend string) {
	key := "backend"
	cmd.Flags().String(key, defaultBackend, WrapString(fmt.Sprintf("Storage backend to use (%s, %s, %s)", BackendDisk, BackendSQLite, BackendMemory)))

	key = "path"
	cmd.Flags().String(key, "", WrapString("Storage directory (disk) or database file (sqlite). Empty creates a temporary location"))
}

// OpenBackend opens the backend of the given kind at path. An empty path
// creates a temporary location, ephemeral reports whether that happened.
func OpenBackend(kind, path string) (backend storage.Backend, ephemeral bool, err error) {
	switch kind {
	case BackendDisk:
		if path == "" {
			backend, err = diskstore.OpenTemp()
			return backend, true, err
		}
		backend, err = diskstore.Open(path)
		return backend, false, err
	case BackendSQLite:
		if path == "" {
			path = filepath.Join(os.TempDir(), "largedict-"+uuid.NewString()+".db")
			ephemeral = true
		}
		backend, err = sqlitestore.Open(path)
		return backend, ephemeral, err
	case BackendMemory:
		return memstore.New(nil), true, nil
	default:
		return nil, false, fmt.Errorf("invalid backend %q (must be one of %s, %s, %s)", kind, BackendDisk, BackendSQLite, BackendMemory)
	}
}
