// semver.go parses release versions. Parse never fails; callers branch on
// Version.Matches so a malformed tag becomes a recorded build error rather
// than a panic or a dropped message.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

// semverPattern is the semver 2.0.0 grammar with capture groups for the
// three numeric parts, the pre-release and the build metadata.
var semverPattern = regexp.MustCompile(
	`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
		`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?` +
		`(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`,
)

// Version is the result of parsing a release string.
type Version struct {
	Major   uint64
	Minor   uint64
	Patch   uint64
	Pre     []string
	Build   []string
	Matches bool
	Raw     string
}

// Parse parses s as a strict semantic version. A leading "v" is not accepted;
// use TrimTagPrefix first. Non-matching input yields Matches == false and zero
// numeric parts.
func Parse(s string) Version {
	v := Version{Raw: s}
	m := semverPattern.FindStringSubmatch(s)
	if m == nil {
		return v
	}

	var err error
	if v.Major, err = strconv.ParseUint(m[1], 10, 64); err != nil {
		return Version{Raw: s}
	}
	if v.Minor, err = strconv.ParseUint(m[2], 10, 64); err != nil {
		return Version{Raw: s}
	}
	if v.Patch, err = strconv.ParseUint(m[3], 10, 64); err != nil {
		return Version{Raw: s}
	}
	if m[4] != "" {
		v.Pre = strings.Split(m[4], ".")
	}
	if m[5] != "" {
		v.Build = strings.Split(m[5], ".")
	}
	v.Matches = true
	return v
}

// TrimTagPrefix strips a single leading "v" from a release tag.
func TrimTagPrefix(tag string) string {
	return strings.TrimPrefix(tag, "v")
}

// Core returns MAJOR.MINOR.PATCH, the form stored in the catalog.
func (v Version) Core() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// String returns the canonical form including pre-release and build metadata.
func (v Version) String() string {
	var b strings.Builder
	b.WriteString(v.Core())
	if len(v.Pre) > 0 {
		b.WriteByte('-')
		b.WriteString(strings.Join(v.Pre, "."))
	}
	if len(v.Build) > 0 {
		b.WriteByte('+')
		b.WriteString(strings.Join(v.Build, "."))
	}
	return b.String()
}

// Compare orders two matched versions by semver precedence. Build metadata is
// ignored. It returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	a, errA := version.NewSemver(v.String())
	b, errB := version.NewSemver(o.String())
	if errA != nil || errB != nil {
		return strings.Compare(v.String(), o.String())
	}
	return a.Compare(b)
}

// ValidateSemver validates that a version string is valid semantic versioning
func ValidateSemver(versionStr string) error {
	if !Parse(versionStr).Matches {
		return fmt.Errorf("invalid semantic version: %q", versionStr)
	}
	return nil
}

// CompareSemver compares two semantic versions
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareSemver(v1Str, v2Str string) (int, error) {
	v1 := Parse(v1Str)
	if !v1.Matches {
		return 0, fmt.Errorf("invalid version v1: %q", v1Str)
	}
	v2 := Parse(v2Str)
	if !v2.Matches {
		return 0, fmt.Errorf("invalid version v2: %q", v2Str)
	}
	return v1.Compare(v2), nil
}

// SortTags returns the tags whose remainder after prefix (and an optional
// "v") parses as semver, ordered oldest first. Other tags are dropped.
func SortTags(tags []string, prefix string) []string {
	type parsed struct {
		tag string
		v   Version
	}
	var out []parsed
	for _, tag := range tags {
		if !strings.HasPrefix(tag, prefix) {
			continue
		}
		v := Parse(TrimTagPrefix(strings.TrimPrefix(tag, prefix)))
		if !v.Matches {
			continue
		}
		out = append(out, parsed{tag: tag, v: v})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].v.Compare(out[j].v) < 0
	})

	sorted := make([]string, len(out))
	for i, p := range out {
		sorted[i] = p.tag
	}
	return sorted
}
