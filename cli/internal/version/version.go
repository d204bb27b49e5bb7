package version

// Version is the current version of the warpcast CLI. Release builds set it with
//
//	go build -ldflags="-X 'github.com/BioHazard786/Warpcast/cli/internal/version.Version=v1.0.0'"
var Version = "dev"
