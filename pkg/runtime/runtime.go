package runtime

var (
	// Version is the build version, set at link time.
	Version = "0.0.0-dev"
	// GitCommit is the git commit hash, set at link time.
	GitCommit = "unknown"
	// Timestamp is the build timestamp, set at link time.
	Timestamp = "unknown"
)
