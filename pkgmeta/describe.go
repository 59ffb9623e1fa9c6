package pkgmeta

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/a3sha2/oxasl/util"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/mongodb/jasper"
	"github.com/pkg/errors"
)

const describeOutputCap = 4 * 1024

// DescribeVersion fills an empty Version from the git state of the
// given directory, and an unset BuildNumber from the commit count.
// Populated fields are left alone.
func (m *Metadata) DescribeVersion(ctx context.Context, jpm jasper.Manager, dir string) error {
	if m.Version == "" {
		out := &util.CappedWriter{Buffer: &bytes.Buffer{}, MaxBytes: describeOutputCap}
		err := jpm.CreateCommand(ctx).Directory(dir).
			Add([]string{"git", "describe", "--tags", "--always", "--dirty"}).
			SetCombinedWriter(out).Run(ctx)
		if err != nil {
			return errors.Wrapf(err, "describing version from git in '%s'", dir)
		}
		m.Version = normalizeDescribedVersion(out.String())
		if m.Version == "" {
			return errors.Errorf("git describe produced no version in '%s'", dir)
		}
	}

	if m.BuildNumber == 0 {
		out := &util.CappedWriter{Buffer: &bytes.Buffer{}, MaxBytes: describeOutputCap}
		err := jpm.CreateCommand(ctx).Directory(dir).
			Add([]string{"git", "rev-list", "--count", "HEAD"}).
			SetCombinedWriter(out).Run(ctx)
		if err != nil {
			// the version is still usable without a commit count
			grip.Debug(message.WrapError(err, message.Fields{
				"message":   "could not count commits for build number",
				"directory": dir,
			}))
			return nil
		}
		if n, err := strconv.Atoi(strings.TrimSpace(out.String())); err == nil {
			m.BuildNumber = n
		}
	}

	return nil
}

// normalizeDescribedVersion converts git describe output to a bare
// version string: surrounding whitespace and a leading "v" are
// stripped.
func normalizeDescribedVersion(raw string) string {
	v := strings.TrimSpace(raw)
	v = strings.TrimPrefix(v, "v")
	return v
}
