package version

// Version is the semver of the current build.
var Version = "0.3.1"

// DevVersion is the version served in dev and demo modes.
var DevVersion = "0.3.1"

func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}
