package main

import "fmt"

const (
	appName    = "Back2Front-Go"
	appVersion = "0.4.0"
)

// gitCommit is set at link time:
// -ldflags "-X main.gitCommit=$(git rev-parse --short HEAD)"
var gitCommit string

// serverSignature is sent as the Server header.
func serverSignature() string {
	commit := gitCommit
	if commit == "" {
		commit = "unknown"
	}
	return fmt.Sprintf("%s/%s (%s)", appName, appVersion, commit)
}
