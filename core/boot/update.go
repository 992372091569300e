package boot

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/mod/semver"
	"k8s.io/utils/clock"
)

const (
	// DefaultRepository is the repository NookCore is published to.
	DefaultRepository = "https://maven.nookure.com/"
	// DefaultUpdateInterval is the time a fetched version is cached for.
	DefaultUpdateInterval = 6 * time.Hour
)

type mavenMetadata struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Versioning struct {
		Latest   string   `xml:"latest"`
		Release  string   `xml:"release"`
		Versions []string `xml:"versions>version"`
	} `xml:"versioning"`
}

// UpdateResult is the outcome of an update check.
type UpdateResult struct {
	Current  string
	Latest   string
	Outdated bool
}

// UpdateChecker looks up the latest published version of NookCore.
type UpdateChecker struct {
	log      *slog.Logger
	http     *retryablehttp.Client
	repo     string
	feature  Feature
	current  string
	clock    clock.Clock
	interval time.Duration

	mu        sync.Mutex
	latest    string
	checkedAt time.Time
}

// UpdateOption ...
type UpdateOption func(*UpdateChecker)

// WithRepository sets the repository queried.
func WithRepository(url string) UpdateOption {
	return func(u *UpdateChecker) { u.repo = url }
}

// WithClock ...
func WithClock(c clock.Clock) UpdateOption {
	return func(u *UpdateChecker) { u.clock = c }
}

// WithInterval sets the time a fetched version is cached for.
func WithInterval(d time.Duration) UpdateOption {
	return func(u *UpdateChecker) { u.interval = d }
}

// WithRetryMax sets the number of retries of a failed request.
func WithRetryMax(n int) UpdateOption {
	return func(u *UpdateChecker) { u.http.RetryMax = n }
}

// NewUpdateChecker returns a checker comparing against current.
func NewUpdateChecker(log *slog.Logger, current string, opts ...UpdateOption) *UpdateChecker {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("subsystem", "update")

	client := retryablehttp.NewClient()
	client.RetryMax = 5
	client.Logger = log
	client.RetryWaitMin = time.Second
	client.RetryWaitMax = 30 * time.Second
	client.Backoff = retryablehttp.LinearJitterBackoff
	client.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		if resp.StatusCode != http.StatusOK {
			log.Warn("Unexpected http response.", "url", resp.Request.URL.String(), "status", resp.Status)
		}
	}

	u := &UpdateChecker{
		log:      log,
		http:     client,
		repo:     DefaultRepository,
		feature:  Core,
		current:  current,
		clock:    clock.RealClock{},
		interval: DefaultUpdateInterval,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// MetadataURL returns the URL of the metadata listing the published versions.
func (u *UpdateChecker) MetadataURL() string {
	return strings.TrimSuffix(u.repo, "/") + "/" + strings.ReplaceAll(GroupID, ".", "/") + "/" +
		u.feature.ArtifactID() + "/maven-metadata.xml"
}

// Latest returns the latest published version. Fetched versions are reused
// until the interval passed.
func (u *UpdateChecker) Latest(ctx context.Context) (string, error) {
	u.mu.Lock()
	if u.latest != "" && u.clock.Since(u.checkedAt) < u.interval {
		latest := u.latest
		u.mu.Unlock()
		return latest, nil
	}
	u.mu.Unlock()

	latest, err := u.fetch(ctx)
	if err != nil {
		return "", err
	}
	u.mu.Lock()
	u.latest, u.checkedAt = latest, u.clock.Now()
	u.mu.Unlock()
	return latest, nil
}

func (u *UpdateChecker) fetch(ctx context.Context) (string, error) {
	url := u.MetadataURL()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("http error (%s): %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http error (%s): %s", url, resp.Status)
	}

	var meta mavenMetadata
	if err := xml.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", fmt.Errorf("%s decode error: %w", url, err)
	}
	latest := ""
	for _, v := range append(meta.Versioning.Versions, meta.Versioning.Release, meta.Versioning.Latest) {
		if !semver.IsValid(canonical(v)) {
			continue
		}
		if latest == "" || semver.Compare(canonical(v), canonical(latest)) > 0 {
			latest = v
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%s lists no versions", url)
	}
	return latest, nil
}

// Check compares the current version with the latest published one.
func (u *UpdateChecker) Check(ctx context.Context) (UpdateResult, error) {
	latest, err := u.Latest(ctx)
	if err != nil {
		return UpdateResult{Current: u.current}, err
	}
	return UpdateResult{
		Current:  u.current,
		Latest:   latest,
		Outdated: semver.Compare(canonical(latest), canonical(u.current)) > 0,
	}, nil
}

// Run checks for updates every interval until ctx is cancelled, logging
// whenever a newer version is available.
func (u *UpdateChecker) Run(ctx context.Context) {
	for {
		res, err := u.Check(ctx)
		switch {
		case err != nil:
			u.log.Warn("Could not check for updates.", "error", err)
		case res.Outdated:
			u.log.Warn("A new version of NookCore is available.", "current", res.Current, "latest", res.Latest)
		default:
			u.log.Debug("NookCore is up to date.", "version", res.Current)
		}
		select {
		case <-ctx.Done():
			return
		case <-u.clock.After(u.interval):
		}
	}
}

// canonical prefixes v with the "v" semver expects.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
