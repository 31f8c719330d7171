package version

// Version is the current version of the WarpCode binaries.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/BioHazard786/warpcode/internal/version.Version=v1.0.0'"
//
// GoReleaser will automatically set this during release builds.
var Version = "dev"
