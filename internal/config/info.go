package config

import (
	"gopkg.in/yaml.v3"
)

// Info is a printable view of a Config
type Info struct {
	Mode           string   `yaml:"mode"`
	ProjectDir     string   `yaml:"project_dir"`
	Compiler       string   `yaml:"compiler"`
	SourceDir      string   `yaml:"source_dir"`
	SourcePatterns []string `yaml:"source_patterns"`
	IncludeDirs    []string `yaml:"include_dirs"`
	BuildDir       string   `yaml:"build_dir"`
	ObjectDir      string   `yaml:"object_dir"`
	CacheFile      string   `yaml:"cache_file"`
	Output         string   `yaml:"output"`
	Jobs           int      `yaml:"jobs"`
	CompileTimeout string   `yaml:"compile_timeout"`
	LinkTimeout    string   `yaml:"link_timeout"`
	CompileFlags   []string `yaml:"compile_flags"`
	LinkFlags      []string `yaml:"link_flags"`
	Libraries      []string `yaml:"libraries,omitempty"`
	ServerAddr     string   `yaml:"server_addr"`
}

// Info returns the printable view of the configuration
func (c Config) Info() Info {
	return Info{
		Mode:           c.Mode.String(),
		ProjectDir:     c.ProjectDir,
		Compiler:       c.Compiler,
		SourceDir:      c.SourceDir,
		SourcePatterns: c.SourcePatterns,
		IncludeDirs:    c.IncludeDirs,
		BuildDir:       c.BuildDir,
		ObjectDir:      c.ObjectDir(),
		CacheFile:      c.CacheFile(),
		Output:         c.Output,
		Jobs:           c.Jobs,
		CompileTimeout: c.CompileTimeout.String(),
		LinkTimeout:    c.LinkTimeout.String(),
		CompileFlags:   c.CompileFlags,
		LinkFlags:      c.LinkArgs(),
		Libraries:      c.Libraries(),
		ServerAddr:     c.ServerAddr,
	}
}

// YAML renders the configuration for display
func (c Config) YAML() (string, error) {
	out, err := yaml.Marshal(c.Info())
	if err != nil {
		return "", err
	}

	return string(out), nil
}
