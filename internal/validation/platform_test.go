package validation

import "testing"

func TestDetectPlatforms(t *testing.T) {
	tests := []struct {
		name   string
		assets []string
		want   Platforms
	}{
		{"linux only", []string{"libaws.so", "mod.json", "mod.ts"}, Platforms{LinuxX86: true}},
		{"all three", []string{"a.so", "a.dylib", "a.dll"}, AllPlatforms},
		{"mac and windows", []string{"a.dylib", "a.dll"}, Platforms{MacOSX86: true, WindowsX86: true}},
		{"none", []string{"mod.ts"}, Platforms{}},
		{"suffix only", []string{"mod.so.sig"}, Platforms{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectPlatforms(tt.assets); got != tt.want {
				t.Errorf("DetectPlatforms(%v) = %+v, want %+v", tt.assets, got, tt.want)
			}
		})
	}
}

func TestIsNativeLibrary(t *testing.T) {
	tests := map[string]bool{
		"libmod.so":       true,
		"libmod.dylib":    true,
		"mod.dll":         true,
		"mod.so.sha256":   false,
		"mod.so.sig":      false,
		"mod.ts":          false,
		"mod.json":        false,
		"checksums.txt":   false,
		"source.tar.gz":   false,
		"windows_x86.zip": false,
	}
	for name, want := range tests {
		if got := IsNativeLibrary(name); got != want {
			t.Errorf("IsNativeLibrary(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestIsBuildAsset(t *testing.T) {
	tests := map[string]bool{
		"libmod.so":     true,
		"libmod.dylib":  true,
		"mod.dll":       true,
		"mod.ts":        true,
		"mod.json":      true,
		"mod.so.sha256": false,
		"README.md":     false,
		"source.zip":    false,
	}
	for name, want := range tests {
		if got := IsBuildAsset(name); got != want {
			t.Errorf("IsBuildAsset(%q) = %v, want %v", name, got, want)
		}
	}
}
