package util

import (
	"os"
)

// UserHome returns the current user's home directory, falling back to
// $HOME and then to the working directory.
func UserHome() string {
	homeDir, err := os.UserHomeDir()
	if err == nil {
		return homeDir
	}
	if home := os.Getenv("HOME"); home != "" {
		log.WithError(err).Warn("os.UserHomeDir failed, falling back to $HOME")
		return home
	}
	if wd, wdErr := os.Getwd(); wdErr == nil {
		log.WithError(err).Warn("No home directory; using working directory")
		return wd
	}
	return "."
}
