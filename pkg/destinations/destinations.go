// Package destinations resolves the platform-specific paths Ember writes to.
//
// The core subsystems only consume the results; all knowledge about where a
// platform keeps temp files, user data, preferences and logs is concentrated
// here.
package destinations

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ember-build/ember/pkg/types"
)

const (
	publicKeyFile   = "ember.public-key.pem"
	preferencesFile = "ember.preferences.toml"
	environmentFile = "ember.environment.toml"

	// ManifestFile is the project declaration at the root of every Ember
	// project.
	ManifestFile = "Ember.toml"

	// PatchFile overrides manifest settings locally without touching the
	// committed manifest.
	PatchFile = "ember.patch.toml"
)

// Username returns the OS account name, falling back to the USER environment
// variable when the lookup fails (static binaries without cgo user lookups).
func Username() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

// CacheNamespace is the per-user directory name holding the cache files of
// every project, and doubles as the keystore service name.
func CacheNamespace() string {
	return fmt.Sprintf("ember.%s.cache", Username())
}

// ProjectFingerprint hashes an absolute project directory into the unique
// path segment naming its cache file, so concurrent projects never collide.
func ProjectFingerprint(projectDir string) string {
	digest := sha512.Sum512([]byte(projectDir))
	return hex.EncodeToString(digest[:])
}

// CachePath resolves the signed cache file for projectDir.
func CachePath(projectDir string) string {
	return filepath.Join(os.TempDir(), CacheNamespace(), ProjectFingerprint(projectDir))
}

// PublicKeyPath resolves the PEM public key file. It lives in the user-data
// directory and is shared across all of the user's projects.
func PublicKeyPath() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", publicKeyFile)
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), publicKeyFile)
	default:
		return filepath.Join(home, ".local", "share", publicKeyFile)
	}
}

// PreferencesPath resolves the per-user preferences declaration file.
func PreferencesPath() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Preferences", preferencesFile)
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), preferencesFile)
	default:
		return filepath.Join(home, ".config", preferencesFile)
	}
}

// EnvironmentPath resolves the system-wide environment declaration file.
func EnvironmentPath() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join("/Library", "Preferences", environmentFile)
	case "windows":
		return filepath.Join(`C:\ProgramData`, environmentFile)
	default:
		return filepath.Join("/etc", environmentFile)
	}
}

// Sources enumerates the declaration files for projectDir in precedence
// order: a key set by an earlier source is never overwritten by a later one.
func Sources(projectDir string) []types.Source {
	return []types.Source{
		{Kind: types.SourceProject, Path: filepath.Join(projectDir, ManifestFile)},
		{Kind: types.SourcePatch, Path: filepath.Join(projectDir, PatchFile)},
		{Kind: types.SourcePreferences, Path: PreferencesPath()},
		{Kind: types.SourceEnvironment, Path: EnvironmentPath()},
	}
}

func logRoot() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "ember")
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "ember", "log")
	default:
		return filepath.Join(home, ".local", "state", "ember", "log")
	}
}

// LogPath resolves the build log file for a scheduler scope entered at the
// given local wall-clock time: {log root}/{day}/{hour}/{project leaf}.log.
func LogPath(projectDir string, now time.Time) string {
	return filepath.Join(
		logRoot(),
		now.Format("2006-01-02"),
		now.Format("15"),
		filepath.Base(projectDir)+".log",
	)
}
