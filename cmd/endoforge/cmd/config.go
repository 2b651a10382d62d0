package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/endoforge/endoforge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing endoforge configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration values in YAML format.

This shows all available configuration options after defaults, config file
and environment variables have been applied. You can redirect this output
to a file to create a configuration template:

  endoforge config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml in ., ./configs, /etc/endoforge, $HOME/.endoforge)
  - Environment variables (ENDOFORGE_ENDPOINT_HOST, ENDOFORGE_STORAGE_OUTPUT_DIR, etc.)
  - Command-line flags (for some options)

Environment variables use the ENDOFORGE_ prefix and underscores for nesting.
Example: endpoint.host -> ENDOFORGE_ENDPOINT_HOST`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map keyed by mapstructure tags, formatting
// durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = v.String()
		case config.ByteSize:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# endoforge Configuration File")
	fmt.Println("# =============================")
	fmt.Println("#")
	fmt.Println("# Duration format: 30s, 5m, 1h")
	fmt.Println("# Size format: 500MB, 5GB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   ENDOFORGE_STORAGE_OUTPUT_DIR, ENDOFORGE_STORAGE_TEMP_DIR")
	fmt.Println("#   ENDOFORGE_ENDPOINT_HOST, ENDOFORGE_ENDPOINT_PORT")
	fmt.Println("#   ENDOFORGE_DICOM_ORG_ROOT")
	fmt.Println("#   ENDOFORGE_LOGGING_LEVEL, ENDOFORGE_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
