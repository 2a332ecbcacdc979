package version

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	Current       = "v0.1.0" // Will be overwritten by ldflags during build
	GitHubAPI     = "https://api.github.com/repos/no-wing/no-wing/releases/latest"
	CheckInterval = 24 * time.Hour
)

type gitHubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

type lastCheck struct {
	LastChecked   time.Time `json:"last_checked"`
	LatestVersion string    `json:"latest_version"`
}

// CheckForUpdates checks if a new version is available (non-blocking).
func CheckForUpdates() {
	if !shouldCheck() {
		return
	}

	go func() {
		latest, url, err := fetchLatest()
		if err != nil {
			return // Silently fail
		}

		if IsNewer(latest, Current) {
			fmt.Fprintf(os.Stderr, "\nUpdate available: %s → %s\n", Current, latest)
			fmt.Fprintf(os.Stderr, "Download: %s\n\n", url)
		}

		saveLastCheck(latest)
	}()
}

func checkPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".no-wing", "version_check.json")
}

func shouldCheck() bool {
	data, err := os.ReadFile(checkPath())
	if err != nil {
		return true
	}

	var check lastCheck
	if err := json.Unmarshal(data, &check); err != nil {
		return true
	}
	return time.Since(check.LastChecked) > CheckInterval
}

func fetchLatest() (string, string, error) {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(GitHubAPI)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var release gitHubRelease
	if err := json.Unmarshal(body, &release); err != nil {
		return "", "", err
	}
	return release.TagName, release.HTMLURL, nil
}

// IsNewer compares two vX.Y.Z tags lexically.
func IsNewer(latest, current string) bool {
	latest = strings.TrimPrefix(latest, "v")
	current = strings.TrimPrefix(current, "v")
	return latest > current
}

func saveLastCheck(version string) {
	path := checkPath()
	if path == "" {
		return
	}
	os.MkdirAll(filepath.Dir(path), 0700)
	data, _ := json.Marshal(lastCheck{LastChecked: time.Now(), LatestVersion: version})
	os.WriteFile(path, data, 0600)
}
