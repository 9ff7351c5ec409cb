package validation

import (
	"fmt"
	"reflect"
	"testing"

	"pgregory.net/rapid"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		matches bool
		major   uint64
		minor   uint64
		patch   uint64
		pre     []string
		build   []string
	}{
		{"1.2.3", true, 1, 2, 3, nil, nil},
		{"0.0.0", true, 0, 0, 0, nil, nil},
		{"10.20.30", true, 10, 20, 30, nil, nil},
		{"1.0.0-beta.1", true, 1, 0, 0, []string{"beta", "1"}, nil},
		{"1.0.0-alpha+001", true, 1, 0, 0, []string{"alpha"}, []string{"001"}},
		{"1.0.0+20130313144700", true, 1, 0, 0, nil, []string{"20130313144700"}},
		{"1.0.0-x-y-z.--", true, 1, 0, 0, []string{"x-y-z", "--"}, nil},
		{"v1.2.3", false, 0, 0, 0, nil, nil},
		{"1.2", false, 0, 0, 0, nil, nil},
		{"01.2.3", false, 0, 0, 0, nil, nil},
		{"1.2.3-01", false, 0, 0, 0, nil, nil},
		{"1.2.3-", false, 0, 0, 0, nil, nil},
		{"1.2.3+", false, 0, 0, 0, nil, nil},
		{"", false, 0, 0, 0, nil, nil},
		{"not-a-version", false, 0, 0, 0, nil, nil},
		{"99999999999999999999.0.0", false, 0, 0, 0, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Parse(tt.in)
			if got.Matches != tt.matches {
				t.Fatalf("Parse(%q).Matches = %v, want %v", tt.in, got.Matches, tt.matches)
			}
			if got.Raw != tt.in {
				t.Errorf("Raw = %q, want %q", got.Raw, tt.in)
			}
			if got.Major != tt.major || got.Minor != tt.minor || got.Patch != tt.patch {
				t.Errorf("Parse(%q) = %d.%d.%d, want %d.%d.%d",
					tt.in, got.Major, got.Minor, got.Patch, tt.major, tt.minor, tt.patch)
			}
			if !reflect.DeepEqual(got.Pre, tt.pre) {
				t.Errorf("Pre = %v, want %v", got.Pre, tt.pre)
			}
			if !reflect.DeepEqual(got.Build, tt.build) {
				t.Errorf("Build = %v, want %v", got.Build, tt.build)
			}
		})
	}
}

func TestTrimTagPrefix(t *testing.T) {
	tests := map[string]string{
		"v1.2.3":  "1.2.3",
		"1.2.3":   "1.2.3",
		"vv1.0.0": "v1.0.0",
		"":        "",
	}
	for in, want := range tests {
		if got := TrimTagPrefix(in); got != want {
			t.Errorf("TrimTagPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVersion_CoreAndString(t *testing.T) {
	v := Parse("1.4.0-rc.2+linux")
	if v.Core() != "1.4.0" {
		t.Errorf("Core() = %q, want 1.4.0", v.Core())
	}
	if v.String() != "1.4.0-rc.2+linux" {
		t.Errorf("String() = %q, want 1.4.0-rc.2+linux", v.String())
	}
}

func TestCompareSemver(t *testing.T) {
	tests := []struct {
		name    string
		v1      string
		v2      string
		want    int
		wantErr bool
	}{
		{"equal", "1.0.0", "1.0.0", 0, false},
		{"v1 less than v2", "1.0.0", "2.0.0", -1, false},
		{"minor difference greater", "1.1.0", "1.0.0", 1, false},
		{"numeric not lexical", "1.10.0", "1.9.0", 1, false},
		{"pre-release less than release", "1.0.0-alpha", "1.0.0", -1, false},
		{"build metadata ignored", "1.0.0+a", "1.0.0+b", 0, false},
		{"invalid v1", "bad", "1.0.0", 0, true},
		{"invalid v2", "1.0.0", "v1.0.0", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompareSemver(tt.v1, tt.v2)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CompareSemver(%q, %q) error = %v, wantErr %v", tt.v1, tt.v2, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("CompareSemver(%q, %q) = %d, want %d", tt.v1, tt.v2, got, tt.want)
			}
		})
	}
}

func TestValidateSemver(t *testing.T) {
	if err := ValidateSemver("1.2.3"); err != nil {
		t.Errorf("ValidateSemver(1.2.3) error = %v", err)
	}
	if err := ValidateSemver("1.2"); err == nil {
		t.Error("ValidateSemver(1.2) expected error")
	}
}

func TestSortTags(t *testing.T) {
	tags := []string{"v1.10.0", "v1.2.0", "nightly", "v1.2.0-rc.1", "v0.9.1", "std-1.0.0"}
	got := SortTags(tags, "")
	want := []string{"v0.9.1", "v1.2.0-rc.1", "v1.2.0", "v1.10.0"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortTags() = %v, want %v", got, want)
	}

	got = SortTags(tags, "std-")
	if !reflect.DeepEqual(got, []string{"std-1.0.0"}) {
		t.Errorf("SortTags(prefix std-) = %v", got)
	}
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func TestParse_RoundTripProperty(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		major := rapid.IntRange(0, 100000).Draw(r, "major")
		minor := rapid.IntRange(0, 100000).Draw(r, "minor")
		patch := rapid.IntRange(0, 100000).Draw(r, "patch")
		pre := rapid.StringMatching(`(|-[a-z][a-z0-9]{0,6}(\.[1-9][0-9]{0,3})?)`).Draw(r, "pre")
		build := rapid.StringMatching(`(|\+[a-z0-9]{1,8})`).Draw(r, "build")

		s := fmt.Sprintf("%d.%d.%d%s%s", major, minor, patch, pre, build)
		v := Parse(s)
		if !v.Matches {
			r.Fatalf("Parse(%q) did not match", s)
		}
		if v.Major != uint64(major) || v.Minor != uint64(minor) || v.Patch != uint64(patch) {
			r.Fatalf("Parse(%q) numeric parts = %d.%d.%d", s, v.Major, v.Minor, v.Patch)
		}
		if v.String() != s {
			r.Fatalf("String() = %q, want %q", v.String(), s)
		}
	})
}

func TestParse_NeverMatchesWithLeadingV(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		s := "v" + rapid.StringMatching(`[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}`).Draw(r, "version")
		if Parse(s).Matches {
			r.Fatalf("Parse(%q) matched a v-prefixed tag", s)
		}
	})
}

func TestCompare_AntisymmetricProperty(t *testing.T) {
	gen := rapid.Custom(func(r *rapid.T) Version {
		return Parse(fmt.Sprintf("%d.%d.%d",
			rapid.IntRange(0, 20).Draw(r, "major"),
			rapid.IntRange(0, 20).Draw(r, "minor"),
			rapid.IntRange(0, 20).Draw(r, "patch")))
	})
	rapid.Check(t, func(r *rapid.T) {
		a := gen.Draw(r, "a")
		b := gen.Draw(r, "b")
		if a.Compare(b) != -b.Compare(a) {
			r.Fatalf("Compare(%s, %s) = %d but Compare(%s, %s) = %d",
				a, b, a.Compare(b), b, a, b.Compare(a))
		}
	})
}
