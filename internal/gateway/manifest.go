package gateway

// DefaultCacheName is the generation token of the current app build.
const DefaultCacheName = "pulse-v1"

// Manifest names a cache generation and the app shell pages precached
// into it on install.
type Manifest struct {
	Name   string
	Assets []string
}

// DefaultManifest returns the app shell manifest.
func DefaultManifest() Manifest {
	return Manifest{
		Name: DefaultCacheName,
		Assets: []string{
			"/",
			"/trends",
			"/history",
			"/settings",
			"/manifest.json",
		},
	}
}
