package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const defaultConfigFile = "swagger2client.yaml"

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
	Verbose    bool
}

func newInitCmd(run func(context.Context, *InitConfig, *Env) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample swagger2client configuration file",
		Long:  "Scaffold a commented swagger2client configuration file that documents the generate options.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &InitConfig{}
			var err error
			if cfg.OutputPath, err = cmd.Flags().GetString("out"); err != nil {
				return err
			}
			if cfg.Force, err = cmd.Flags().GetBool("force"); err != nil {
				return err
			}
			if cfg.Verbose, err = cmd.Flags().GetBool("verbose"); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, newEnv(cmd, cfg.Verbose))
		},
	}

	cmd.Flags().String("out", defaultConfigFile, "Where to write the sample config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")

	return cmd
}

func runInit(_ context.Context, cfg *InitConfig, env *Env) error {
	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = defaultConfigFile
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && st.Mode().IsRegular() && !cfg.Force {
		return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", absPath))
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot create parent directory: %v", err))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(absPath)+".tmp-*")
	if err != nil {
		return newUsageError(fmt.Sprintf("init: cannot write temp file: %v\nHint: choose a different --out or check directory permissions.", err))
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(strings.TrimSpace(sampleConfigYAML) + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("init: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("init: close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("init: chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), absPath); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot place file at %s: %v", absPath, err))
	}
	env.Logger.Debug("wrote sample config", "path", absPath)
	fmt.Fprintf(env.Out, "Wrote sample config to %s\n", absPath)
	return nil
}

const sampleConfigYAML = `# swagger2client configuration (YAML)
# All fields are optional. Command-line flags override config values.

# Path or URL to the Swagger/OpenAPI document (http/https or local file).
# input: ./openapi.yaml

# Output directory. When omitted, derived from the document title.
# out: ./petstore

# Go import path of the output directory. When omitted, derived from the
# nearest go.mod above the output directory.
# importPath: example.com/app/petstore

# Only include operations with these tags (comma-separated or list).
# includeTags: [pet, store]

# Exclude operations with these tags (comma-separated or list).
# excludeTags: [internal]

# Only include these HTTP methods.
# methods: [get, post]

# Only include paths matching these regular expressions.
# paths: ['^/pet']

# Emit callables that return thunks reporting START/SUCCESS/ERROR
# notifications to a dispatch function.
# dispatch: false

# Validate the document strictly before generating.
# validate: false

# Timeout for fetching the document by URL.
# httpTimeout: 30s

# Preview planned outputs without writing files.
# dryRun: false

# Overwrite a non-empty output directory.
# force: false

# Enable verbose logging.
# verbose: false
`
