// Package staleness decides whether a unit's object file is out of date.
package staleness

import (
	"github.com/Norgate-AV/incbuild/internal/cache"
	"github.com/Norgate-AV/incbuild/internal/discovery"
	"github.com/Norgate-AV/incbuild/internal/utils"
)

// Reason explains a verdict
type Reason string

const (
	ReasonMissingOutput   Reason = "missing-output"
	ReasonSourceMissing   Reason = "source-missing"
	ReasonSourceNewer     Reason = "source-newer"
	ReasonFingerprint     Reason = "fingerprint"
	ReasonDependencyNewer Reason = "dependency-newer"
	ReasonUpToDate        Reason = "up-to-date"
)

// Verdict is the outcome of a staleness check
type Verdict struct {
	Stale  bool
	Reason Reason
	// Dependency names the newer dependency when Reason is ReasonDependencyNewer
	Dependency string
}

// Lookup is the read side of the build cache
type Lookup interface {
	Lookup(id string) (cache.Entry, bool)
}

// Oracle checks units against the filesystem and the build cache
type Oracle struct {
	cache       Lookup
	fingerprint func(path string) (string, error)
}

// New creates an oracle backed by the given cache
func New(c Lookup) *Oracle {
	return &Oracle{
		cache:       c,
		fingerprint: cache.Fingerprint,
	}
}

// NeedsRebuild reports whether unit must be compiled. Checks run cheapest
// first: output presence, source mtime, content fingerprint against the
// cache, then declared dependency mtimes.
func (o *Oracle) NeedsRebuild(unit discovery.Unit) Verdict {
	outTime, ok := utils.ModTime(unit.Object)
	if !ok {
		return stale(ReasonMissingOutput)
	}

	srcTime, ok := utils.ModTime(unit.Source)
	if !ok {
		return stale(ReasonSourceMissing)
	}

	if srcTime.After(outTime) {
		return stale(ReasonSourceNewer)
	}

	// A record only counts if it describes this exact output
	entry, ok := o.cache.Lookup(unit.ID())
	if !ok || entry.Output != unit.Object {
		return stale(ReasonFingerprint)
	}

	sum, err := o.fingerprint(unit.Source)
	if err != nil || sum != entry.Fingerprint {
		return stale(ReasonFingerprint)
	}

	for _, dep := range unit.Dependencies {
		depTime, ok := utils.ModTime(dep)
		if !ok {
			continue // vanished headers are not tracked
		}

		if depTime.After(outTime) {
			return Verdict{Stale: true, Reason: ReasonDependencyNewer, Dependency: dep}
		}
	}

	return Verdict{Reason: ReasonUpToDate}
}

func stale(r Reason) Verdict {
	return Verdict{Stale: true, Reason: r}
}
