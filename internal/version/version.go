package version

import (
	"runtime/debug"
	"sync"
)

const Header = "X-Paygate-Version"

const versionDevel = "devel"

// version is set via ldflags at build time.
// falls back to debug.ReadBuildInfo for go install.
var version = versionDevel

var once sync.Once

func Get() string {
	once.Do(func() {
		if version != versionDevel {
			return
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		if v := info.Main.Version; v != "" && v != "("+versionDevel+")" {
			version = v
		}
	})
	return version
}

// UserAgent is sent on outbound requests made by paygate binaries.
func UserAgent() string {
	return "paygate/" + Get()
}
