package version

// Version is the engine version. Frozen decision models declare the engine
// version they were exported for and are checked against it on load.
// Set at build time with:
// -ldflags "-X github.com/rxtech-lab/argo-strategy-engine/internal/version.Version=1.2.3"
// The value "main" indicates a development build.
var Version = "v1.0.0"

// GetVersion returns the current engine version.
func GetVersion() string {
	return Version
}
