package kernel

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is the kernel release.
const Version = "0.1.0"

var version = semver.MustParse(Version)

// Banner is the line printed once the hardware is up.
func Banner() string {
	return fmt.Sprintf("OHWES %d.%d", version.Major(), version.Minor())
}

// CheckCompatible reports an error if Version does not satisfy constraint.
// An empty constraint accepts any version.
func CheckCompatible(constraint string) error {
	if strings.TrimSpace(constraint) == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("kernel: version constraint %q: %w", constraint, err)
	}
	if !c.Check(version) {
		return fmt.Errorf("kernel: version %s does not satisfy %s", version, c)
	}
	return nil
}
