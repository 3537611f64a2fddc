// SPDX-License-Identifier: MPL-2.0

package platform

// NodePlatform returns the name node's process.platform and os.platform()
// use for goos.
func NodePlatform(goos string) string {
	if goos == Windows {
		return "win32"
	}
	return goos
}

// NodeArch returns the name node's process.arch and os.arch() use for
// goarch.
func NodeArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	case "386":
		return "ia32"
	case "mips64le":
		return "mips64el"
	case "mipsle":
		return "mipsel"
	default:
		return goarch
	}
}

// NodeOSType returns the value of node's os.type() for goos.
func NodeOSType(goos string) string {
	switch goos {
	case Windows:
		return "Windows_NT"
	case Darwin:
		return "Darwin"
	case Linux:
		return "Linux"
	case "freebsd":
		return "FreeBSD"
	case "openbsd":
		return "OpenBSD"
	case "netbsd":
		return "NetBSD"
	default:
		return goos
	}
}

// EOL returns the line terminator node's os.EOL reports for goos.
func EOL(goos string) string {
	if goos == Windows {
		return "\r\n"
	}
	return "\n"
}
