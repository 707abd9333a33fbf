package appupdate

import (
	"context"
	"fmt"

	"github.com/creativeprojects/go-selfupdate"
)

// Release describes one published build of the agent.
type Release interface {
	Version() string
	AssetURL() string
	AssetName() string
}

// Updater locates and applies releases. Wrapped in an interface so tests
// can stub the network.
type Updater interface {
	DetectLatest(ctx context.Context, repo string) (Release, bool, error)
	UpdateTo(ctx context.Context, assetURL string, assetName string, exePath string) error
}

// githubUpdater adapts go-selfupdate to the Updater interface.
type githubUpdater struct {
	updater *selfupdate.Updater
}

// NewGitHubUpdater creates an Updater backed by GitHub releases.
func NewGitHubUpdater() (Updater, error) {
	updater, err := selfupdate.NewUpdater(selfupdate.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize updater: %w", err)
	}
	return &githubUpdater{updater: updater}, nil
}

func (g *githubUpdater) DetectLatest(ctx context.Context, repo string) (Release, bool, error) {
	release, found, err := g.updater.DetectLatest(ctx, selfupdate.ParseSlug(repo))
	if err != nil || !found || release == nil {
		return nil, false, err
	}
	return githubRelease{release: release}, true, nil
}

func (g *githubUpdater) UpdateTo(ctx context.Context, assetURL string, assetName string, exePath string) error {
	return selfupdate.UpdateTo(ctx, assetURL, assetName, exePath)
}

type githubRelease struct {
	release *selfupdate.Release
}

func (r githubRelease) Version() string {
	return r.release.Version()
}

func (r githubRelease) AssetURL() string {
	return r.release.AssetURL
}

func (r githubRelease) AssetName() string {
	return r.release.AssetName
}
