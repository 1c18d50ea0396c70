package config

import (
	"fmt"
	"strings"
)

// Mode selects the build profile
type Mode int

const (
	ModeDebug Mode = iota
	ModeRelease
)

// ParseMode converts a mode name into a Mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "":
		return ModeDebug, nil
	case "release":
		return ModeRelease, nil
	}

	return ModeDebug, fmt.Errorf("unknown build mode: %q", s)
}

func (m Mode) String() string {
	switch m {
	case ModeDebug:
		return "debug"
	case ModeRelease:
		return "release"
	}

	return fmt.Sprintf("mode(%d)", int(m))
}

// Profile is the fully resolved set of mode dependent settings
type Profile struct {
	// Output artifact file name, placed in the build directory
	Output string
	// Flags passed to every compile invocation
	CompileFlags []string
	// Flags passed to the link invocation
	LinkFlags []string
}

// Profile resolves the mode into its profile. Every mode returns a
// complete value; there is no base profile to merge into.
func (m Mode) Profile() (Profile, error) {
	switch m {
	case ModeDebug:
		return debugProfile(), nil
	case ModeRelease:
		return releaseProfile(), nil
	}

	return Profile{}, fmt.Errorf("unknown build mode: %s", m)
}

// linkRuntimeFlags are shared by both profiles, prefixed to each profile's own flags.
func linkRuntimeFlags() []string {
	return []string{
		"-s", "USE_GLFW=3",
		"-s", "ALLOW_MEMORY_GROWTH=1",
		"-s", "TOTAL_MEMORY=67108864",
		"-s", "STACK_SIZE=5242880",
		"-s", "FORCE_FILESYSTEM=1",
		"-s", "EXPORTED_RUNTIME_METHODS=['ccall','cwrap']",
		"-s", "EXPORTED_FUNCTIONS=['_main']",
	}
}

func debugProfile() Profile {
	link := []string{"-O2", "-g", "-s", "ASYNCIFY"}
	link = append(link, linkRuntimeFlags()...)
	link = append(link, "-s", "ASSERTIONS=2", "-s", "SAFE_HEAP=1")

	return Profile{
		Output:       "bulang_debug.html",
		CompileFlags: []string{"-std=c++17", "-O2", "-g", "-Wall", "-DDEBUG"},
		LinkFlags:    link,
	}
}

func releaseProfile() Profile {
	link := []string{"-O3"}
	link = append(link, linkRuntimeFlags()...)
	link = append(link,
		"-s", "ASSERTIONS=0",
		"-s", "SAFE_HEAP=0",
		"--closure", "1",
		"-flto",
		"--minify", "0",
	)

	return Profile{
		Output: "bulang.html",
		CompileFlags: []string{
			"-std=c++17", "-O3", "-DNDEBUG", "-flto",
			"-fno-exceptions", "-fno-rtti", "-Wall", "-Wno-unused-function",
		},
		LinkFlags: link,
	}
}
