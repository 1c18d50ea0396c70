package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by the loader
const EnvPrefix = "INCBUILD"

// Loader handles configuration loading from various sources.
// Each Loader owns its viper instance so independent runs never share state.
type Loader struct {
	v             *viper.Viper
	userConfigDir func() (string, error)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		v:             viper.New(),
		userConfigDir: os.UserConfigDir,
	}
}

// Viper exposes the underlying viper instance
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// LoadForBuild loads configuration for build operations. Precedence, lowest
// first: defaults, global config, local config, .env file, environment, flags.
func (l *Loader) LoadForBuild(cmd *cobra.Command, mode Mode) (Config, error) {
	l.setupViperDefaults()
	l.bindCommandFlags(cmd)

	projectDir, err := l.projectDir()
	if err != nil {
		return Config{}, err
	}

	l.v.Set("project_dir", projectDir)

	if err := l.loadGlobalConfig(); err != nil {
		return Config{}, err
	}

	if err := l.loadLocalConfig(projectDir); err != nil {
		return Config{}, err
	}

	if err := l.loadDotEnv(projectDir); err != nil {
		return Config{}, err
	}

	l.bindEnv()

	return Load(l.v, mode)
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	l.v.SetDefault("project_dir", "")
	l.v.SetDefault("compiler", DefaultCompiler)
	l.v.SetDefault("source_dir", DefaultSourceDir)
	l.v.SetDefault("source_patterns", DefaultSourcePatterns)
	l.v.SetDefault("include_dirs", []string{DefaultIncludeDir})
	l.v.SetDefault("header_patterns", DefaultHeaderPatterns)
	l.v.SetDefault("build_dir", DefaultBuildDir)
	l.v.SetDefault("jobs", DefaultJobs)
	l.v.SetDefault("compile_timeout", DefaultCompileTimeout)
	l.v.SetDefault("link_timeout", DefaultLinkTimeout)
	l.v.SetDefault("library.repo", DefaultLibraryRepo)
	l.v.SetDefault("library.clone_dir", DefaultLibraryClone)
	l.v.SetDefault("library.source_dir", DefaultLibrarySource)
	l.v.SetDefault("library.archive", DefaultLibraryArchive)
	l.v.SetDefault("library.make_args", DefaultLibraryMakeArgs)
	l.v.SetDefault("library.timeout", DefaultLibraryTimeout)
	l.v.SetDefault("library.skip", false)
	l.v.SetDefault("assets_dir", DefaultAssetsDir)
	l.v.SetDefault("shell_file", DefaultShellFile)
	l.v.SetDefault("server_addr", DefaultServerAddr)
	l.v.SetDefault("history_file", DefaultHistoryFile)
	l.v.SetDefault("verbose", false)
}

// projectDir resolves the project directory from the --project flag or the working directory
func (l *Loader) projectDir() (string, error) {
	dir := l.v.GetString("project")
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}

		dir = cwd
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project directory: %w", err)
	}

	return abs, nil
}

// loadGlobalConfig loads global configuration from the user config directory
func (l *Loader) loadGlobalConfig() error {
	base, err := l.userConfigDir()
	if err != nil {
		return nil // no user config dir, nothing to load
	}

	path := FindGlobalConfig(base)
	if path == "" {
		return nil
	}

	l.v.SetConfigFile(path)
	if err := l.v.MergeInConfig(); err != nil {
		return fmt.Errorf("failed to read global config %s: %w", path, err)
	}

	return nil
}

// loadLocalConfig loads local configuration found by walking up from the project directory
func (l *Loader) loadLocalConfig(dir string) error {
	path := FindLocalConfig(dir)
	if path == "" {
		return nil
	}

	l.v.SetConfigFile(path)
	if err := l.v.MergeInConfig(); err != nil {
		return fmt.Errorf("failed to read local config %s: %w", path, err)
	}

	return nil
}

// loadDotEnv merges INCBUILD_* values from a .env file in the project directory
func (l *Loader) loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	vars, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	values := make(map[string]any)
	for _, key := range l.v.AllKeys() {
		if val, ok := vars[envName(key)]; ok {
			setNested(values, key, val)
		}
	}

	if len(values) == 0 {
		return nil
	}

	return l.v.MergeConfigMap(values)
}

// bindEnv makes INCBUILD_* environment variables override file values
func (l *Loader) bindEnv() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	for key, flag := range map[string]string{
		"jobs":        "jobs",
		"verbose":     "verbose",
		"project":     "project",
		"server_addr": "addr",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = l.v.BindPFlag(key, f)
		}
	}
}

// envName maps a viper key to its environment variable name
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// setNested stores val under a dotted key as nested maps
func setNested(m map[string]any, key string, val any) {
	parts := strings.Split(key, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}

		m = next
	}

	m[parts[len(parts)-1]] = val
}
