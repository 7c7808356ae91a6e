package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// CheckCompatibility checks that an artifact built for requiredVersion can be
// used by an engine at engineVersion.
//
// Rules:
//   - "main" on either side skips the check (development builds)
//   - major and minor must match exactly
//   - patch may differ
//
// Examples:
//   - engine 1.2.1, model 1.2.0 -> OK
//   - engine 1.3.0, model 1.2.0 -> ERROR (minor differs)
//   - engine main,  model 1.2.0 -> OK
func CheckCompatibility(engineVersion, requiredVersion string) error {
	engineVersion = strings.TrimPrefix(engineVersion, "v")
	requiredVersion = strings.TrimPrefix(requiredVersion, "v")

	if engineVersion == "main" || requiredVersion == "main" {
		return nil
	}

	engineSemver, err := semver.NewVersion(engineVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid engine version '%s'", engineVersion)
	}

	requiredSemver, err := semver.NewVersion(requiredVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid required version '%s'", requiredVersion)
	}

	if engineSemver.Major() != requiredSemver.Major() {
		return errors.Newf(errors.ErrCodeVersionMismatch, "major version mismatch: engine is %d.x.x but model requires %d.x.x",
			engineSemver.Major(), requiredSemver.Major())
	}

	if engineSemver.Minor() != requiredSemver.Minor() {
		return errors.Newf(errors.ErrCodeVersionMismatch, "minor version mismatch: engine is %d.%d.x but model requires %d.%d.x",
			engineSemver.Major(), engineSemver.Minor(),
			requiredSemver.Major(), requiredSemver.Minor())
	}

	return nil
}
