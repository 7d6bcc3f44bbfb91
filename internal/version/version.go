package version

// Version is the current version of the Huddle CLI.
// Release builds set it with:
//
//	go build -ldflags="-X 'github.com/BioHazard786/Huddle/internal/version.Version=v1.0.0'"
var Version = "dev"

// UserAgent is sent with the signaling handshake so relays can tell clients apart.
func UserAgent() string {
	return "huddle-cli/" + Version
}
