// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"esdata/internal/issue"
	"esdata/pkg/cueutil"
	"esdata/pkg/platform"

	"cuelang.org/go/cue"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "esdata"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "esdata"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides, e.g. ESDATA_LOG_LEVEL.
	EnvPrefix = "ESDATA"
)

//go:embed config_schema.cue
var configSchema string

var configSchemaDef = cueutil.MustCompileSchema([]byte(configSchema), "#Config")

// ConfigDir returns the esdata configuration directory under the platform's
// user configuration home.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	home, err := platform.UserConfigHome(runtime.GOOS)
	if err != nil {
		return "", err
	}
	return filepath.Join(home, AppName), nil
}

// FileName returns the config file name, "esdata.cue".
func FileName() string {
	return ConfigFileName + "." + ConfigFileExt
}

// loadWithOptions performs option-driven config loading. It returns the
// config and the path of the file it was read from, empty when only defaults
// and environment overrides apply.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	if err := opts.Validate(); err != nil {
		return nil, "", err
	}

	baseDir := opts.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get working directory: %w", err)
		}
		baseDir = wd
	}

	v := viper.New()

	// Set defaults
	defaults := DefaultConfig()
	v.SetDefault("root", defaults.Root)
	v.SetDefault("ignore", defaults.Ignore)
	v.SetDefault("external", defaults.External)
	v.SetDefault("conditions", defaults.Conditions)
	v.SetDefault("tsconfig", defaults.Tsconfig)
	v.SetDefault("comment_config_policy", string(defaults.CommentConfigPolicy))
	v.SetDefault("log_level", string(defaults.LogLevel))
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)
	v.SetDefault("watch.ignore", defaults.Watch.Ignore)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath, err := findConfigFile(opts, baseDir)
	if err != nil {
		return nil, "", err
	}

	maps := keyedMaps{}
	if resolvedPath != "" {
		maps, err = loadCUEIntoViper(v, resolvedPath)
		if err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestions(
					"Check that the file contains valid CUE syntax",
					"Verify the configuration values match the expected schema",
					"Run 'esdata config show' to see the effective configuration",
				).
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Alias = maps.Alias
	cfg.Define = maps.Define
	if cfg.Alias == nil {
		cfg.Alias = defaults.Alias
	}
	if cfg.Define == nil {
		cfg.Define = defaults.Define
	}

	// Environment overrides bypass the CUE schema.
	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithIssue(issue.ConfigLoadFailedId).
			WithSuggestions("Check " + EnvPrefix + "_* environment variables for typos").
			Wrap(errs[0]).
			BuildError()
	}

	cfg.Root = resolveRoot(cfg.Root, baseDir, resolvedPath)
	cfg.Path = resolvedPath

	return &cfg, resolvedPath, nil
}

// findConfigFile applies the lookup order: the explicit file, then the
// platform config directory, then the base directory.
func findConfigFile(opts LoadOptions, baseDir string) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestions(
					"Verify the file path is correct",
					"Check that the file exists and is readable",
					"Use 'esdata config show' to see default configuration",
				).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
	if err != nil {
		return "", err
	}
	for _, candidate := range []string{
		filepath.Join(cfgDir, FileName()),
		filepath.Join(baseDir, FileName()),
	} {
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	// If no config file found, use defaults (no error)
	return "", nil
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// resolveRoot anchors a relative root at the config file's directory, or at
// baseDir when no file was read.
func resolveRoot(root, baseDir, configPath string) string {
	anchor := baseDir
	if configPath != "" {
		if abs, err := filepath.Abs(configPath); err == nil {
			anchor = filepath.Dir(abs)
		}
	}
	switch {
	case root == "":
		root = baseDir
	case !filepath.IsAbs(root):
		root = filepath.Join(anchor, root)
	}
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return filepath.Clean(root)
}

// keyedMaps holds the map-valued fields. Viper lower-cases keys and splits
// them on dots, which would corrupt keys like "process.env.NODE_ENV", so
// these are decoded straight from CUE.
type keyedMaps struct {
	Alias  map[string]string `json:"alias"`
	Define map[string]string `json:"define"`
}

// loadCUEIntoViper validates a CUE file against #Config and merges it into
// Viper. alias and define are returned separately: Viper lower-cases keys
// and splits them on dots, which would corrupt import paths and define
// names.
func loadCUEIntoViper(v *viper.Viper, path string) (keyedMaps, error) {
	var maps keyedMaps

	data, err := os.ReadFile(path)
	if err != nil {
		return maps, fmt.Errorf("failed to read config file: %w", err)
	}

	var configMap map[string]any
	err = configSchemaDef.Validate(data, func(unified cue.Value) error {
		if err := unified.Decode(&configMap); err != nil {
			return err
		}
		return unified.Decode(&maps)
	}, cueutil.WithFilename(path), cueutil.WithConcrete(false))
	if err != nil {
		return maps, err
	}
	delete(configMap, "alias")
	delete(configMap, "define")

	// Merge into Viper (preserves defaults, allows env overrides)
	if err := v.MergeConfigMap(configMap); err != nil {
		return maps, fmt.Errorf("failed to merge config: %w", err)
	}

	return maps, nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes a default esdata.cue into dir unless one
// already exists, and returns its path.
func CreateDefaultConfig(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(dir, FileName())

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, nil
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return cfgPath, nil
}

// GenerateCUE generates a CUE representation of the configuration. Root is
// omitted when empty, so a generated file stays portable.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// esdata project configuration\n\n")

	if cfg.Root != "" {
		sb.WriteString(fmt.Sprintf("root: %q\n", cfg.Root))
	}
	writeList(&sb, "", "ignore", cfg.Ignore)
	writeList(&sb, "", "external", cfg.External)
	writeMap(&sb, "alias", cfg.Alias)
	writeList(&sb, "", "conditions", cfg.Conditions)
	writeMap(&sb, "define", cfg.Define)
	if cfg.Tsconfig != "" {
		sb.WriteString(fmt.Sprintf("tsconfig: %q\n", cfg.Tsconfig))
	}
	sb.WriteString(fmt.Sprintf("comment_config_policy: %q\n", cfg.CommentConfigPolicy))
	sb.WriteString(fmt.Sprintf("log_level: %q\n", cfg.LogLevel))

	sb.WriteString("\nwatch: {\n")
	sb.WriteString(fmt.Sprintf("\tdebounce: %q\n", cfg.Watch.Debounce))
	writeList(&sb, "\t", "ignore", cfg.Watch.Ignore)
	sb.WriteString("}\n")

	return sb.String()
}

func writeList(sb *strings.Builder, indent, name string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("%s%s: [\n", indent, name))
	for _, item := range items {
		sb.WriteString(fmt.Sprintf("%s\t%q,\n", indent, item))
	}
	sb.WriteString(indent + "]\n")
}

func writeMap(sb *strings.Builder, name string, m map[string]string) {
	if len(m) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("%s: {\n", name))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("\t%q: %q\n", k, m[k]))
	}
	sb.WriteString("}\n")
}
