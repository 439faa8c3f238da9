package organizations

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/bissquit/statusboard/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLength = 63

var (
	slugPattern    = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	nonSlugPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeSlug lower-cases a user supplied slug and checks it is URL safe.
func NormalizeSlug(slug string) (string, error) {
	s := cases.Fold().String(strings.TrimSpace(slug))
	if s == "" {
		return "", domain.NewValidationError("slug", "must not be blank")
	}
	if len(s) > maxSlugLength {
		return "", domain.NewValidationError("slug", "must be at most 63 characters")
	}
	if !slugPattern.MatchString(s) {
		return "", domain.NewValidationError("slug", "may contain only letters, digits and single hyphens")
	}
	return s, nil
}

// Slugify derives a slug from a display name: accents are stripped and
// every run of other characters becomes one hyphen.
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}

	s := nonSlugPattern.ReplaceAllString(cases.Fold().String(plain), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLength {
		s = strings.TrimRight(s[:maxSlugLength], "-")
	}
	return s
}
