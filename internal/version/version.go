// Package version provides build and version information for Sentient Play.
package version

// Version is the current release version of Sentient Play.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/SentientPlay/internal/version.Version=x.y.z"
var Version = "1.0.0"
