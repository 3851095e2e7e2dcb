package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform represents the detected platform
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL1    Platform = "wsl1"
	PlatformWSL2    Platform = "wsl2"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

var (
	detectOnce       sync.Once
	detectedPlatform Platform
)

// Detect returns the current platform, caching the result
func Detect() Platform {
	detectOnce.Do(func() {
		detectedPlatform = detectPlatform(runtime.GOOS, readProcVersion())
	})
	return detectedPlatform
}

func readProcVersion() string {
	data, err := os.ReadFile("/proc/version")
	if err != nil && os.Getenv("WSL_DISTRO_NAME") != "" {
		// WSL without a readable /proc/version still counts as WSL.
		return "Microsoft"
	}
	return string(data)
}

// detectPlatform maps GOOS and the kernel version string to a Platform.
func detectPlatform(goos, procVersion string) Platform {
	switch goos {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
		switch {
		// WSL2 kernels are "microsoft-standard-WSL2"; WSL1 reports "Microsoft".
		case strings.Contains(procVersion, "microsoft-standard"):
			return PlatformWSL2
		case strings.Contains(procVersion, "Microsoft"), strings.Contains(procVersion, "microsoft"):
			return PlatformWSL1
		}
		return PlatformLinux
	default:
		return PlatformUnknown
	}
}

// String returns a human-readable platform name
func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macOS"
	case PlatformLinux:
		return "Linux"
	case PlatformWSL1:
		return "WSL1"
	case PlatformWSL2:
		return "WSL2"
	case PlatformWindows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// NotifyBackend names the program used for desktop notifications.
type NotifyBackend string

const (
	NotifyNone       NotifyBackend = ""
	NotifyOSAScript  NotifyBackend = "osascript"
	NotifyNotifySend NotifyBackend = "notify-send"
)

// NotifyBackend returns the desktop notification program for p. WSL uses
// notify-send too; wsl-notify-send style shims install under that name.
func (p Platform) NotifyBackend() NotifyBackend {
	switch p {
	case PlatformMacOS:
		return NotifyOSAScript
	case PlatformLinux, PlatformWSL1, PlatformWSL2:
		return NotifyNotifySend
	default:
		return NotifyNone
	}
}

// CheckFsnotifySupport checks if a path's filesystem supports fsnotify events reliably.
// Returns a warning message if on a problematic filesystem (9p, nfs, cifs, sshfs),
// or an empty string if fsnotify should work normally.
func CheckFsnotifySupport(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return ""
	}

	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}

	return fsnotifyWarning(mountFSType(string(mounts), absPath))
}

// mountFSType returns the filesystem type of the longest mount point in a
// /proc/mounts listing that contains path.
func mountFSType(mounts, path string) string {
	var matchedMount, matchedFsType string
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mountPoint, fsType := fields[1], fields[2]
		if !strings.HasPrefix(path, mountPoint) || len(mountPoint) <= len(matchedMount) {
			continue
		}
		matchedMount, matchedFsType = mountPoint, fsType
	}
	return matchedFsType
}

func fsnotifyWarning(fsType string) string {
	switch {
	case fsType == "9p":
		return "Config on 9p mount (WSL2 Windows filesystem): hot reload disabled, restart to apply changes."
	case fsType == "nfs" || fsType == "nfs4":
		return "Config on NFS mount: hot reload may be unreliable."
	case fsType == "cifs" || fsType == "smbfs":
		return "Config on CIFS/SMB mount: hot reload may be unreliable."
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return "Config on SSHFS mount: hot reload disabled, restart to apply changes."
	}
	return ""
}
