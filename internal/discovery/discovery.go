// Package discovery enumerates the compilation units of a project.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Norgate-AV/incbuild/internal/config"
)

// Unit is one source file compiled into exactly one object file.
// Units are recomputed on every run and never persisted.
type Unit struct {
	Source       string
	Object       string
	Dependencies []string
}

// ID returns the source identity used as the cache key
func (u Unit) ID() string {
	return filepath.Clean(u.Source)
}

// Discover finds every source matching the configured patterns in the
// source directory. Each unit declares every header of every include
// directory as a dependency.
func Discover(cfg config.Config) ([]Unit, error) {
	sources, err := glob(cfg.SourceDir, cfg.SourcePatterns)
	if err != nil {
		return nil, err
	}

	var headers []string
	for _, dir := range cfg.IncludeDirs {
		found, err := glob(dir, cfg.HeaderPatterns)
		if err != nil {
			return nil, err
		}

		headers = append(headers, found...)
	}

	objectDir := cfg.ObjectDir()
	owners := make(map[string]string, len(sources))
	units := make([]Unit, 0, len(sources))

	for _, src := range sources {
		stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
		obj := filepath.Join(objectDir, stem+".o")

		if prev, ok := owners[obj]; ok {
			return nil, fmt.Errorf("sources %s and %s both map to object %s", prev, src, obj)
		}

		owners[obj] = src

		deps := make([]string, len(headers))
		copy(deps, headers)

		units = append(units, Unit{
			Source:       src,
			Object:       obj,
			Dependencies: deps,
		})
	}

	sort.Slice(units, func(i, j int) bool { return units[i].ID() < units[j].ID() })

	return units, nil
}

// glob returns the regular files in dir matching any pattern, sorted and without duplicates
func glob(dir string, patterns []string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	seen := make(map[string]bool)
	var files []string

	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}

		for _, m := range matches {
			if seen[m] {
				continue
			}

			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}

			seen[m] = true
			files = append(files, m)
		}
	}

	sort.Strings(files)

	return files, nil
}
