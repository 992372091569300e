// Package boot resolves the NookCore features a server runs with and starts
// the subsystems backing them.
package boot

import (
	"fmt"
	"slices"
	"strings"
)

// Version is the version of NookCore.
const Version = "1.0.0"

// GroupID is the group the NookCore artifacts are published under.
const GroupID = "com.nookure.core"

// Feature is a part of NookCore that can be enabled on its own.
type Feature int

const (
	Core Feature = iota
	Config
	Database
	Event
	Logger
	Messenger
	Player
)

var features = [...]struct {
	name     string
	artifact string
	requires []Feature
}{
	Core:      {name: "CORE", artifact: "NookCore-Core", requires: []Feature{Logger}},
	Config:    {name: "CONFIG", artifact: "NookCore-Config", requires: []Feature{Logger}},
	Database:  {name: "DATABASE", artifact: "NookCore-Database", requires: []Feature{Config, Logger}},
	Event:     {name: "EVENT", artifact: "NookCore-Event", requires: []Feature{Logger}},
	Logger:    {name: "LOGGER", artifact: "NookCore-Logger"},
	Messenger: {name: "MESSENGER", artifact: "NookCore-Messenger", requires: []Feature{Event, Logger}},
	Player:    {name: "PLAYER", artifact: "NookCore-Player", requires: []Feature{Logger}},
}

// AllFeatures returns every feature.
func AllFeatures() []Feature {
	return []Feature{Core, Config, Database, Event, Logger, Messenger, Player}
}

func (f Feature) valid() bool { return f >= Core && f <= Player }

// String ...
func (f Feature) String() string {
	if !f.valid() {
		return fmt.Sprintf("Feature(%d)", int(f))
	}
	return features[f].name
}

// ArtifactID returns the artifact the feature is published as.
func (f Feature) ArtifactID() string {
	if !f.valid() {
		return ""
	}
	return features[f].artifact
}

// Requires returns the features f cannot run without.
func (f Feature) Requires() []Feature {
	if !f.valid() {
		return nil
	}
	return slices.Clone(features[f].requires)
}

// ParseFeature parses a feature by its name or artifact id.
func ParseFeature(s string) (Feature, error) {
	s = strings.TrimSpace(s)
	for _, f := range AllFeatures() {
		if strings.EqualFold(s, f.String()) || strings.EqualFold(s, f.ArtifactID()) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown feature %q", s)
}

// Coordinate returns the artifact coordinate of f at version.
func Coordinate(f Feature, version string) string {
	return GroupID + ":" + f.ArtifactID() + ":" + version
}

// Resolve returns the features passed together with everything they require,
// ordered by feature.
func Resolve(fs ...Feature) []Feature {
	seen := map[Feature]bool{}
	var visit func(f Feature)
	visit = func(f Feature) {
		if !f.valid() || seen[f] {
			return
		}
		seen[f] = true
		for _, r := range features[f].requires {
			visit(r)
		}
	}
	for _, f := range fs {
		visit(f)
	}
	out := make([]Feature, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// depth returns the length of the longest requirement chain below f.
func depth(f Feature) int {
	d := 0
	for _, r := range features[f].requires {
		d = max(d, depth(r)+1)
	}
	return d
}
