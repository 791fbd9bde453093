package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/swagger2client/internal/emitter/goemitter"
	"github.com/mark3labs/swagger2client/internal/spec"
)

// GenerateConfig captures all inputs that influence the generate command after
// merging defaults, config file values, and CLI overrides.
type GenerateConfig struct {
	Input       string
	Out         string
	ImportPath  string
	IncludeTags []string
	ExcludeTags []string
	Methods     []string
	Paths       []string
	Dispatch    bool
	Validate    bool
	HTTPTimeout time.Duration
	ConfigPath  string
	DryRun      bool
	Force       bool
	Verbose     bool
}

func defaultGenerateConfig() GenerateConfig {
	return GenerateConfig{HTTPTimeout: spec.DefaultSettings().HTTPTimeout}
}

func newGenerateCmd(run func(context.Context, *GenerateConfig, *Env) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate Go client packages from an OpenAPI/Swagger document",
		Long: "Generate Go client packages from an OpenAPI/Swagger document. " +
			"Options can be provided via flags, config files, or defaults.",
		Example: strings.TrimSpace(`  swagger2client generate --input petstore.yaml --out ./petstore --import-path example.com/app/petstore
  swagger2client --config swagger2client.yaml generate --dispatch --force`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, newEnv(cmd, cfg.Verbose))
		},
	}

	flags := cmd.Flags()
	flags.String("input", "", "Path or URL to the Swagger/OpenAPI document")
	flags.String("out", "", "Output directory (derived from the document title when omitted)")
	flags.String("import-path", "", "Go import path of the output directory (derived from the enclosing go.mod when omitted)")
	flags.StringSlice("include-tags", nil, "Only include operations with these tags")
	flags.StringSlice("exclude-tags", nil, "Exclude operations with these tags")
	flags.StringSlice("methods", nil, "Only include these HTTP methods")
	flags.StringSlice("paths", nil, "Only include paths matching these regular expressions")
	flags.Bool("dispatch", false, "Emit callables returning thunks that report start/success/error notifications")
	flags.Bool("validate", false, "Validate the document strictly before generating")
	flags.Duration("http-timeout", 0, "Timeout for fetching a document by URL")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")
	flags.Bool("force", false, "Overwrite existing output when set")

	return cmd
}

func resolveGenerateConfig(cmd *cobra.Command) (*GenerateConfig, error) {
	cfg := defaultGenerateConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyGenerateConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyGenerateFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyGenerateFlagOverrides(flags *pflag.FlagSet, cfg *GenerateConfig) error {
	strs := map[string]*string{"input": &cfg.Input, "out": &cfg.Out, "import-path": &cfg.ImportPath}
	for name, dst := range strs {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = value
	}
	lists := map[string]*[]string{
		"include-tags": &cfg.IncludeTags,
		"exclude-tags": &cfg.ExcludeTags,
		"methods":      &cfg.Methods,
		"paths":        &cfg.Paths,
	}
	for name, dst := range lists {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetStringSlice(name)
		if err != nil {
			return err
		}
		*dst = value
	}
	bools := map[string]*bool{
		"dispatch": &cfg.Dispatch,
		"validate": &cfg.Validate,
		"dry-run":  &cfg.DryRun,
		"force":    &cfg.Force,
		"verbose":  &cfg.Verbose,
	}
	for name, dst := range bools {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		*dst = value
	}
	if flags.Changed("http-timeout") {
		value, err := flags.GetDuration("http-timeout")
		if err != nil {
			return err
		}
		cfg.HTTPTimeout = value
	}
	return nil
}

func (c *GenerateConfig) normalize() {
	c.Input = strings.TrimSpace(c.Input)
	c.Out = strings.TrimSpace(c.Out)
	c.ImportPath = strings.TrimSuffix(strings.TrimSpace(c.ImportPath), "/")
	c.IncludeTags = sanitizeList(c.IncludeTags)
	c.ExcludeTags = sanitizeList(c.ExcludeTags)
	c.Methods = sanitizeList(c.Methods)
	for i, m := range c.Methods {
		c.Methods[i] = strings.ToLower(m)
	}
	c.Paths = sanitizeList(c.Paths)
}

func (c *GenerateConfig) validate() error {
	if c.Input == "" {
		return newUsageError("generate: --input is required (set via flag or config file)")
	}
	if overlap := intersect(c.IncludeTags, c.ExcludeTags); len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("generate: include/exclude tags overlap: %s", strings.Join(overlap, ", ")))
	}
	for _, m := range c.Methods {
		switch spec.HttpMethod(m) {
		case spec.GET, spec.POST, spec.PUT, spec.DELETE, spec.PATCH, spec.HEAD, spec.OPTIONS, spec.TRACE:
		default:
			return newUsageError(fmt.Sprintf("generate: unsupported method %q", m))
		}
	}
	for _, p := range c.Paths {
		if _, err := regexp.Compile(p); err != nil {
			return newUsageError(fmt.Sprintf("generate: invalid path pattern %q: %v", p, err))
		}
	}
	if c.HTTPTimeout < 0 {
		return newUsageError("generate: --http-timeout must not be negative")
	}
	return nil
}

func runGenerate(ctx context.Context, cfg *GenerateConfig, env *Env) error {
	log := env.Logger

	loadOpts := []spec.Option{spec.WithValidation(cfg.Validate), spec.WithLoaderLogger(log)}
	if cfg.HTTPTimeout > 0 {
		loadOpts = append(loadOpts, spec.WithHTTPTimeout(cfg.HTTPTimeout))
	}
	doc, err := spec.Load(ctx, cfg.Input, loadOpts...)
	if err != nil {
		return describeGenerationError(err, cfg.Input)
	}
	log.Debug("document loaded", "input", cfg.Input, "version", doc.Version)

	methods := make([]spec.HttpMethod, 0, len(cfg.Methods))
	for _, m := range cfg.Methods {
		methods = append(methods, spec.HttpMethod(m))
	}
	sm, err := spec.BuildServiceModel(ctx, doc,
		spec.WithIncludeTags(cfg.IncludeTags),
		spec.WithExcludeTags(cfg.ExcludeTags),
		spec.WithMethods(methods),
		spec.WithPathPatterns(cfg.Paths),
		spec.WithLogger(log),
	)
	if err != nil {
		return describeGenerationError(err, cfg.Input)
	}
	log.Info("model built", "operations", len(sm.Operations), "schemas", len(sm.Schemas), "tags", len(sm.Tags))

	outDir := cfg.Out
	if outDir == "" {
		outDir = deriveDirName(sm.Title)
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("resolve out dir: %w", err)
	}
	importPath := cfg.ImportPath
	if importPath == "" {
		importPath, err = importPathFor(absOut)
		if err != nil {
			return newUsageError(fmt.Sprintf("generate: --import-path is required: %v", err))
		}
		log.Debug("derived import path", "import_path", importPath)
	}

	res, err := goemitter.Emit(ctx, sm, goemitter.Options{
		OutDir:     absOut,
		ImportPath: importPath,
		Dispatch:   cfg.Dispatch,
		Force:      cfg.Force,
		DryRun:     cfg.DryRun,
		Logger:     log,
	})
	if err != nil {
		var genErr *generationError
		if desc := describeGenerationError(err, cfg.Input); errors.As(desc, &genErr) {
			return desc
		}
		return wrapOutputError(err, absOut)
	}
	if cfg.DryRun {
		fmt.Fprintf(env.Out, "Planned writes to %s (%d files):\n", absOut, len(res.Planned))
		for _, p := range res.Planned {
			fmt.Fprintf(env.Out, "- %s\n", p.RelPath)
		}
		return nil
	}
	fmt.Fprintf(env.Out, "Generated %d packages in %s\n", len(res.Packages), absOut)
	return nil
}

// importPathFor derives the import path of dir from the nearest enclosing
// go.mod. dir does not need to exist.
func importPathFor(dir string) (string, error) {
	for cur := dir; ; {
		data, err := os.ReadFile(filepath.Join(cur, "go.mod"))
		if err == nil {
			mod := modfile.ModulePath(data)
			if mod == "" {
				return "", fmt.Errorf("%s has no module directive", filepath.Join(cur, "go.mod"))
			}
			rel, err := filepath.Rel(cur, dir)
			if err != nil {
				return "", err
			}
			return path.Join(mod, filepath.ToSlash(rel)), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("no go.mod found above %s", dir)
		}
		cur = parent
	}
}

func wrapOutputError(err error, outDir string) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "read-only") || strings.Contains(lower, "mkdir") || strings.Contains(lower, "rename") || strings.Contains(lower, "output directory") {
		return newUsageError(fmt.Sprintf("output error for %s: %s\nHint: choose a different --out or use --force when appropriate.", outDir, msg))
	}
	return err
}

// deriveDirName turns a title into a lower-case dash separated directory
// name, "client" when nothing usable remains.
func deriveDirName(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	t = strings.NewReplacer("/", " ", "_", " ", ".", " ", ",", " ", ":", " ").Replace(t)
	var parts []string
	for _, f := range strings.Fields(t) {
		var b strings.Builder
		for _, r := range f {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
				b.WriteRune(r)
			}
		}
		if s := strings.Trim(b.String(), "-"); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "client"
	}
	return strings.Join(parts, "-")
}

func sanitizeList(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[item]; ok {
			result = append(result, item)
		}
	}
	return result
}

// configSetters maps normalized config keys to their fields.
var configSetters = map[string]func(cfg *GenerateConfig, v any) error{
	"input":       stringSetter(func(c *GenerateConfig) *string { return &c.Input }),
	"out":         stringSetter(func(c *GenerateConfig) *string { return &c.Out }),
	"importpath":  stringSetter(func(c *GenerateConfig) *string { return &c.ImportPath }),
	"includetags": listSetter(func(c *GenerateConfig) *[]string { return &c.IncludeTags }),
	"excludetags": listSetter(func(c *GenerateConfig) *[]string { return &c.ExcludeTags }),
	"methods":     listSetter(func(c *GenerateConfig) *[]string { return &c.Methods }),
	"paths":       listSetter(func(c *GenerateConfig) *[]string { return &c.Paths }),
	"dispatch":    boolSetter(func(c *GenerateConfig) *bool { return &c.Dispatch }),
	"validate":    boolSetter(func(c *GenerateConfig) *bool { return &c.Validate }),
	"dryrun":      boolSetter(func(c *GenerateConfig) *bool { return &c.DryRun }),
	"force":       boolSetter(func(c *GenerateConfig) *bool { return &c.Force }),
	"verbose":     boolSetter(func(c *GenerateConfig) *bool { return &c.Verbose }),
	"httptimeout": func(c *GenerateConfig, v any) error {
		s, err := valueAsString(v)
		if err != nil || s == "" {
			return err
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		c.HTTPTimeout = d
		return nil
	},
}

func stringSetter(field func(*GenerateConfig) *string) func(*GenerateConfig, any) error {
	return func(c *GenerateConfig, v any) error {
		s, err := valueAsString(v)
		if err != nil {
			return err
		}
		*field(c) = s
		return nil
	}
}

func listSetter(field func(*GenerateConfig) *[]string) func(*GenerateConfig, any) error {
	return func(c *GenerateConfig, v any) error {
		list, err := valueAsStringSlice(v)
		if err != nil {
			return err
		}
		*field(c) = sanitizeList(list)
		return nil
	}
}

func boolSetter(field func(*GenerateConfig) *bool) func(*GenerateConfig, any) error {
	return func(c *GenerateConfig, v any) error {
		b, err := valueAsBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func applyGenerateConfigFromFile(cfg *GenerateConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	for key, value := range raw {
		set, ok := configSetters[normalizeKey(key)]
		if !ok {
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
		if err := set(cfg, value); err != nil {
			return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
		}
	}
	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer("-", "", "_", "").Replace(lowered)
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.Split(val, ","), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			items = append(items, str)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case nil:
		return false, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n", "":
			return false, nil
		}
		return false, fmt.Errorf("invalid boolean value %q", val)
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}
