package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultCompiler       = "em++"
	DefaultSourceDir      = "src"
	DefaultIncludeDir     = "include"
	DefaultBuildDir       = "build"
	DefaultJobs           = 4
	DefaultCompileTimeout = 60 * time.Second
	DefaultLinkTimeout    = 300 * time.Second
	DefaultLibraryRepo    = "https://github.com/raysan5/raylib.git"
	DefaultLibraryClone   = "external/raylib"
	DefaultLibrarySource  = "external/raylib/src"
	DefaultLibraryArchive = "external/raylib/src/libraylib.web.a"
	DefaultLibraryTimeout = 300 * time.Second
	DefaultAssetsDir      = "assets"
	DefaultShellFile      = "shell.html"
	DefaultServerAddr     = ":8000"
	DefaultHistoryFile    = ".incbuild/history.db"
)

var (
	DefaultSourcePatterns  = []string{"*.cpp"}
	DefaultHeaderPatterns  = []string{"*.hpp"}
	DefaultLibraryMakeArgs = []string{"PLATFORM=PLATFORM_WEB", "-B"}
)

// Library describes the external library archive linked into the output
type Library struct {
	// Git repository cloned when the library sources are missing
	Repo string
	// Directory the repository is cloned into
	CloneDir string
	// Directory holding the library Makefile and headers
	SourceDir string
	// Archive produced by make and passed to the linker
	Archive string
	// Arguments passed to make
	MakeArgs []string
	// Upper bound for the make invocation
	Timeout time.Duration
	// Skip fetching and building the library entirely
	Skip bool
}

// Config is the resolved configuration for one run. It is built once by
// Load and passed by value; nothing mutates it afterwards.
type Config struct {
	Mode Mode

	// Root of the project, all relative paths are resolved against it
	ProjectDir string
	// Compiler driver used for both compile and link
	Compiler string

	SourceDir      string
	SourcePatterns []string
	IncludeDirs    []string
	HeaderPatterns []string

	// Directory for objects, the cache file and the final artifact
	BuildDir string
	// Absolute path to the final artifact
	Output string

	CompileFlags []string
	LinkFlags    []string

	// Size of the compile worker pool
	Jobs           int
	CompileTimeout time.Duration
	LinkTimeout    time.Duration

	Library Library

	AssetsDir   string
	ShellFile   string
	ServerAddr  string
	HistoryFile string

	Verbose bool
}

// Load builds a Config for the given mode from the values held by v
func Load(v *viper.Viper, mode Mode) (Config, error) {
	profile, err := mode.Profile()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Mode:           mode,
		ProjectDir:     v.GetString("project_dir"),
		Compiler:       v.GetString("compiler"),
		SourceDir:      v.GetString("source_dir"),
		SourcePatterns: slices.Clone(v.GetStringSlice("source_patterns")),
		IncludeDirs:    slices.Clone(v.GetStringSlice("include_dirs")),
		HeaderPatterns: slices.Clone(v.GetStringSlice("header_patterns")),
		BuildDir:       v.GetString("build_dir"),
		Output:         profile.Output,
		CompileFlags:   profile.CompileFlags,
		LinkFlags:      profile.LinkFlags,
		Jobs:           v.GetInt("jobs"),
		CompileTimeout: v.GetDuration("compile_timeout"),
		LinkTimeout:    v.GetDuration("link_timeout"),
		Library: Library{
			Repo:      v.GetString("library.repo"),
			CloneDir:  v.GetString("library.clone_dir"),
			SourceDir: v.GetString("library.source_dir"),
			Archive:   v.GetString("library.archive"),
			MakeArgs:  slices.Clone(v.GetStringSlice("library.make_args")),
			Timeout:   v.GetDuration("library.timeout"),
			Skip:      v.GetBool("library.skip"),
		},
		AssetsDir:   v.GetString("assets_dir"),
		ShellFile:   v.GetString("shell_file"),
		ServerAddr:  v.GetString("server_addr"),
		HistoryFile: v.GetString("history_file"),
		Verbose:     v.GetBool("verbose"),
	}

	if cfg.Compiler == "" {
		cfg.Compiler = DefaultCompiler
	}

	if len(cfg.SourcePatterns) == 0 {
		cfg.SourcePatterns = slices.Clone(DefaultSourcePatterns)
	}

	if len(cfg.HeaderPatterns) == 0 {
		cfg.HeaderPatterns = slices.Clone(DefaultHeaderPatterns)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration and resolves every path to an absolute one
func (c *Config) Validate() error {
	if c.ProjectDir == "" {
		c.ProjectDir = "."
	}

	abs, err := filepath.Abs(c.ProjectDir)
	if err != nil {
		return fmt.Errorf("invalid project directory: %v", err)
	}

	c.ProjectDir = abs

	if c.Jobs < 1 {
		return fmt.Errorf("invalid job count: %d (must be at least 1)", c.Jobs)
	}

	if c.CompileTimeout <= 0 {
		return fmt.Errorf("invalid compile timeout: %s", c.CompileTimeout)
	}

	if c.LinkTimeout <= 0 {
		return fmt.Errorf("invalid link timeout: %s", c.LinkTimeout)
	}

	if c.SourceDir == "" {
		return fmt.Errorf("source directory not specified")
	}

	if c.BuildDir == "" {
		return fmt.Errorf("build directory not specified")
	}

	c.SourceDir = c.resolve(c.SourceDir)
	c.BuildDir = c.resolve(c.BuildDir)
	c.Output = filepath.Join(c.BuildDir, c.Output)
	c.AssetsDir = c.resolve(c.AssetsDir)
	c.ShellFile = c.resolve(c.ShellFile)
	c.HistoryFile = c.resolve(c.HistoryFile)

	// Empty include folders are skipped
	dirs := make([]string, 0, len(c.IncludeDirs))
	for _, dir := range c.IncludeDirs {
		if dir != "" {
			dirs = append(dirs, c.resolve(dir))
		}
	}

	c.IncludeDirs = dirs

	if !c.Library.Skip {
		if c.Library.Timeout <= 0 {
			return fmt.Errorf("invalid library timeout: %s", c.Library.Timeout)
		}

		c.Library.CloneDir = c.resolve(c.Library.CloneDir)
		c.Library.SourceDir = c.resolve(c.Library.SourceDir)
		c.Library.Archive = c.resolve(c.Library.Archive)
	}

	return nil
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(c.ProjectDir, p)
}

// ObjectDir is where object files of this mode are written
func (c Config) ObjectDir() string {
	return filepath.Join(c.BuildDir, "obj", c.Mode.String())
}

// CacheFile is the persisted build cache of this mode
func (c Config) CacheFile() string {
	return filepath.Join(c.BuildDir, ".build_cache_"+c.Mode.String()+".json")
}

// LinkManifestFile records the inputs of the last successful link of this mode
func (c Config) LinkManifestFile() string {
	return filepath.Join(c.BuildDir, ".link_"+c.Mode.String()+".json")
}

// LibraryCacheFile records the library build, shared by every mode
func (c Config) LibraryCacheFile() string {
	return filepath.Join(c.BuildDir, ".build_cache_library.json")
}

// CompileIncludes returns the search directories passed to the compiler
func (c Config) CompileIncludes() []string {
	dirs := slices.Clone(c.IncludeDirs)
	if !c.Library.Skip && c.Library.SourceDir != "" {
		dirs = append(dirs, c.Library.SourceDir)
	}

	return dirs
}

// Libraries returns the external archives passed to the linker
func (c Config) Libraries() []string {
	if c.Library.Skip || c.Library.Archive == "" {
		return nil
	}

	return []string{c.Library.Archive}
}

// LinkArgs returns the profile link flags followed by asset packing flags
func (c Config) LinkArgs() []string {
	args := slices.Clone(c.LinkFlags)

	if c.AssetsDir != "" {
		args = append(args, "--preload-file", c.AssetsDir+"@/assets")
	}

	if c.ShellFile != "" {
		args = append(args, "--shell-file", c.ShellFile)
	}

	return args
}
