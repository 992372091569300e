package boot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DebugEnv enables debug mode when set to a true value.
const DebugEnv = "NOOKCORE_DEBUG"

// StartFunc starts the subsystem of a feature.
type StartFunc func(ctx context.Context) error

// Bootstrapper starts the subsystems of a feature set. Subsystems whose
// requirements are started run concurrently.
type Bootstrapper struct {
	log      *slog.Logger
	features []Feature
	debug    bool

	mu      sync.Mutex
	starts  map[Feature]StartFunc
	started map[Feature]bool
}

// New returns a Bootstrapper for the features passed and their requirements.
func New(log *slog.Logger, fs ...Feature) *Bootstrapper {
	if log == nil {
		log = slog.Default()
	}
	return &Bootstrapper{
		log:      log.With("subsystem", "boot"),
		features: Resolve(fs...),
		debug:    debugFromEnv(),
		starts:   make(map[Feature]StartFunc),
		started:  make(map[Feature]bool),
	}
}

func debugFromEnv() bool {
	v, ok := os.LookupEnv(DebugEnv)
	if !ok {
		return false
	}
	if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
		return b
	}
	// Any other value, including an empty one, counts as set.
	return true
}

// Debug reports whether debug mode was enabled through the environment.
func (b *Bootstrapper) Debug() bool { return b.debug }

// Features returns the resolved features.
func (b *Bootstrapper) Features() []Feature { return slices.Clone(b.features) }

// Enabled reports whether f is part of the resolved features.
func (b *Bootstrapper) Enabled(f Feature) bool { return slices.Contains(b.features, f) }

// Register sets the function starting the subsystem of f. Functions of
// features that are not enabled are never called.
func (b *Bootstrapper) Register(f Feature, start StartFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts[f] = start
}

// Started reports whether the subsystem of f was started.
func (b *Bootstrapper) Started(f Feature) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started[f]
}

// Start starts the registered subsystems, grouped by the depth of their
// requirements. It stops at the first group that fails.
func (b *Bootstrapper) Start(ctx context.Context) error {
	if b.debug {
		for _, f := range b.features {
			b.log.Info("Adding feature.", "coordinate", Coordinate(f, Version))
		}
	}

	waves := map[int][]Feature{}
	maxDepth := 0
	for _, f := range b.features {
		d := depth(f)
		waves[d] = append(waves[d], f)
		maxDepth = max(maxDepth, d)
	}

	for d := 0; d <= maxDepth; d++ {
		g, gctx := errgroup.WithContext(ctx)
		for _, f := range waves[d] {
			b.mu.Lock()
			start, ok := b.starts[f]
			b.mu.Unlock()
			if !ok || start == nil {
				continue
			}
			g.Go(func() error {
				if err := start(gctx); err != nil {
					return fmt.Errorf("start %v: %w", f, err)
				}
				b.mu.Lock()
				b.started[f] = true
				b.mu.Unlock()
				b.log.Debug("Feature started.", "feature", f)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}
