// platform.go classifies release assets by the native library they carry.
// A provider ships one shared library per operating system; the presence of
// each suffix is what the catalog records as platform support.
package validation

import "strings"

// Native library suffixes per platform.
const (
	SuffixLinux   = ".so"
	SuffixMacOS   = ".dylib"
	SuffixWindows = ".dll"
)

// Platforms records which x86 targets a version ships a native library for.
type Platforms struct {
	LinuxX86   bool `json:"linux_x86"`
	MacOSX86   bool `json:"macos_x86"`
	WindowsX86 bool `json:"windows_x86"`
}

// AllPlatforms is used for std modules, which carry no native code.
var AllPlatforms = Platforms{LinuxX86: true, MacOSX86: true, WindowsX86: true}

// DetectPlatforms derives platform support from asset file names.
func DetectPlatforms(assetNames []string) Platforms {
	var p Platforms
	for _, name := range assetNames {
		switch {
		case strings.HasSuffix(name, SuffixLinux):
			p.LinuxX86 = true
		case strings.HasSuffix(name, SuffixMacOS):
			p.MacOSX86 = true
		case strings.HasSuffix(name, SuffixWindows):
			p.WindowsX86 = true
		}
	}
	return p
}

// IsNativeLibrary reports whether an asset name ends in a shared library
// suffix. Signatures and checksums such as "mod.so.sig" do not count.
func IsNativeLibrary(name string) bool {
	return strings.HasSuffix(name, SuffixLinux) ||
		strings.HasSuffix(name, SuffixMacOS) ||
		strings.HasSuffix(name, SuffixWindows)
}

// IsBuildAsset reports whether an asset is kept on a build record: native
// libraries, TypeScript sources and JSON documentation graphs.
func IsBuildAsset(name string) bool {
	return IsNativeLibrary(name) ||
		strings.HasSuffix(name, ".ts") ||
		strings.HasSuffix(name, ".json")
}
