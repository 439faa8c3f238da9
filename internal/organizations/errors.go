package organizations

import "github.com/bissquit/statusboard/internal/domain"

// Organization errors.
var (
	ErrOrganizationNotFound = domain.NewKindError(domain.ErrNotFound, "organization not found")
	ErrSlugTaken            = domain.NewKindError(domain.ErrConflict, "slug already in use")
	ErrTeamNotFound         = domain.NewKindError(domain.ErrNotFound, "team not found")
	ErrMemberExists         = domain.NewKindError(domain.ErrConflict, "user is already a member of the team")
	ErrMemberNotFound       = domain.NewKindError(domain.ErrNotFound, "membership not found")
)
