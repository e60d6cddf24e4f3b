package metrics

import (
	"runtime"

	"github.com/tjfontaine/companion-core/internal/domain"
)

// DetectPlatform maps the Go runtime target onto the platform enum.
func DetectPlatform() domain.Platform {
	return platformFor(runtime.GOOS, runtime.GOARCH)
}

func platformFor(goos, goarch string) domain.Platform {
	switch {
	case goos == "ios":
		return domain.PlatformIOS
	case goos == "android":
		return domain.PlatformAndroid
	case goos == "js" || goarch == "wasm":
		return domain.PlatformWeb
	default:
		return domain.PlatformServer
	}
}
