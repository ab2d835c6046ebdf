package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/austin-starks/nexttrade/pkg/errors"
)

// CheckVersionCompatibility checks whether a persisted backtest document can
// be rehydrated by this engine build. Returns nil if compatible.
//
// Compatibility Rules:
//   - If either version is "main" (development build), the check is skipped
//   - Major versions must match exactly
//   - Minor versions must match exactly
//   - Patch versions can differ (e.g., 1.2.0 can load a 1.2.5 document)
func CheckVersionCompatibility(engineVersion, documentVersion string) error {
	engineVersion = strings.TrimPrefix(engineVersion, "v")
	documentVersion = strings.TrimPrefix(documentVersion, "v")

	// Skip version check for "main" (development builds)
	if engineVersion == "main" || documentVersion == "main" {
		return nil
	}

	engineSemver, err := semver.NewVersion(engineVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid engine version '%s'", engineVersion)
	}

	documentSemver, err := semver.NewVersion(documentVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid document version '%s'", documentVersion)
	}

	if engineSemver.Major() != documentSemver.Major() {
		return errors.Newf(errors.ErrCodeInvalidVersion,
			"major version mismatch: engine is %d.x.x but document was written by %d.x.x",
			engineSemver.Major(), documentSemver.Major())
	}

	if engineSemver.Minor() != documentSemver.Minor() {
		return errors.Newf(errors.ErrCodeInvalidVersion,
			"minor version mismatch: engine is %d.%d.x but document was written by %d.%d.x",
			engineSemver.Major(), engineSemver.Minor(),
			documentSemver.Major(), documentSemver.Minor())
	}

	// Patch versions can differ.
	return nil
}
