package discovery

import (
	"fmt"
	"strings"

	"github.com/lockplane/ksmigrate/internal/version"
)

const (
	scriptPrefix       = "V"
	versionSeparator   = "__"
	descriptionSpacing = "_"
)

// ParseFilename splits a script name such as "V3_0__Add_users.cql" into its
// version and description. ok is false for files that are not migrations.
func ParseFilename(filename, suffix string) (v version.Version, description string, ok bool, err error) {
	if !strings.HasPrefix(filename, scriptPrefix) || !strings.HasSuffix(strings.ToLower(filename), suffix) {
		return version.Version{}, "", false, nil
	}

	base := filename[len(scriptPrefix) : len(filename)-len(suffix)]
	versionText, desc, _ := strings.Cut(base, versionSeparator)

	v, err = version.Parse(versionText)
	if err != nil {
		return version.Version{}, "", true, fmt.Errorf("invalid version in %s: %w", filename, err)
	}
	return v, strings.TrimSpace(strings.ReplaceAll(desc, descriptionSpacing, " ")), true, nil
}
