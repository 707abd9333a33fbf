package appupdate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/atinylittleshell/gojacp/internal/core"
	"github.com/atinylittleshell/gojacp/internal/filesystem"
)

// Repository is the GitHub slug releases are published under.
const Repository = "atinylittleshell/gojacp"

// HandleSelfUpdate checks for a newer release in the background. The
// returned channel yields the newer version string if one exists, then
// closes.
func HandleSelfUpdate(
	currentVersion string,
	logger *zap.Logger,
	fs filesystem.FileSystem,
	updater Updater,
) chan string {
	resultChannel := make(chan string)

	currentSemVer, err := semver.NewVersion(currentVersion)
	if err != nil {
		logger.Debug("running a dev build, skipping self-update check")
		close(resultChannel)
		return resultChannel
	}

	// Check for newer versions from remote repository
	go fetchAndSaveLatestVersion(resultChannel, logger, fs, updater, currentSemVer)

	return resultChannel
}

// ReadLatestVersion returns the newer version recorded by an earlier
// background check, or empty when none was recorded.
func ReadLatestVersion(fs filesystem.FileSystem) string {
	file, err := fs.Open(core.LatestVersionFile())
	if err != nil {
		return ""
	}
	defer file.Close()

	var buf bytes.Buffer
	_, err = io.Copy(&buf, file)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(buf.String())
}

func fetchAndSaveLatestVersion(resultChannel chan string, logger *zap.Logger, fs filesystem.FileSystem, updater Updater, currentSemVer *semver.Version) {
	defer close(resultChannel)

	latest, found, err := updater.DetectLatest(
		context.Background(),
		Repository,
	)
	if err != nil {
		logger.Warn("error occurred while getting latest version from remote", zap.Error(err))
		return
	}
	if !found {
		logger.Warn("latest version could not be found")
		return
	}

	// Check if there's a newer version
	latestSemVer, err := semver.NewVersion(latest.Version())
	if err != nil {
		logger.Error("failed to parse latest version", zap.Error(err))
		return
	}

	if latestSemVer.LessThanEqual(currentSemVer) {
		logger.Debug("already running the latest version")
		return
	}

	// Save the latest version for notification
	recordFilePath := core.LatestVersionFile()
	file, err := fs.Create(recordFilePath)
	if err != nil {
		logger.Error("failed to save latest version", zap.Error(err))
		return
	}
	defer file.Close()

	_, err = file.WriteString(latest.Version())
	if err != nil {
		logger.Error("failed to save latest version", zap.Error(err))
		return
	}

	logger.Info("new version available", zap.String("current", currentSemVer.String()), zap.String("latest", latest.Version()))
	resultChannel <- latest.Version()
}

// ApplyUpdate replaces the current executable with the latest release when
// one is newer than currentVersion. It returns the version applied, or
// empty when already up to date.
func ApplyUpdate(ctx context.Context, currentVersion string, updater Updater) (string, error) {
	currentSemVer, err := semver.NewVersion(currentVersion)
	if err != nil {
		return "", fmt.Errorf("cannot self-update a dev build (version %q)", currentVersion)
	}

	latest, found, err := updater.DetectLatest(ctx, Repository)
	if err != nil {
		return "", fmt.Errorf("failed to check for updates: %w", err)
	}
	if !found {
		return "", fmt.Errorf("no release found for %s", Repository)
	}

	latestSemVer, err := semver.NewVersion(latest.Version())
	if err != nil {
		return "", fmt.Errorf("failed to parse latest version %q: %w", latest.Version(), err)
	}
	if latestSemVer.LessThanEqual(currentSemVer) {
		return "", nil
	}

	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate current executable: %w", err)
	}

	if err := updater.UpdateTo(ctx, latest.AssetURL(), latest.AssetName(), exePath); err != nil {
		return "", fmt.Errorf("failed to update to %s: %w", latest.Version(), err)
	}
	return latest.Version(), nil
}
