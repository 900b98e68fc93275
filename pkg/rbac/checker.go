package rbac

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/schema"
)

// Checker decides whether a profile may perform an action on a collection
type Checker interface {
	// CanDo evaluates a permission check. It fails with an
	// unauthenticated error when the check carries no profile.
	CanDo(ctx context.Context, check PermissionCheck) (*PermissionCheckResult, error)

	// IsAdmin reports whether the profile belongs to the administrator team
	IsAdmin(ctx context.Context, profile *Profile) (bool, error)
}

// TeamResolver maps team slugs onto team ids
type TeamResolver interface {
	// ResolveSlugs returns the id for every slug that exists. Unknown slugs
	// are absent from the result.
	ResolveSlugs(ctx context.Context, slugs []string) (map[string]string, error)
}

// PermissionChecker implements the Checker interface
type PermissionChecker struct {
	teams TeamResolver
	now   func() time.Time
}

// NewPermissionChecker creates a checker. teams may be nil, in which case
// slug grants never match.
func NewPermissionChecker(teams TeamResolver) *PermissionChecker {
	return &PermissionChecker{teams: teams, now: time.Now}
}

// CanDo checks, in order: the anyone sentinels, direct user ids,
// document-scoped user paths, team ids and finally team slugs. Slugs are
// resolved last because they need a lookup.
func (pc *PermissionChecker) CanDo(ctx context.Context, check PermissionCheck) (*PermissionCheckResult, error) {
	if check.Profile == nil {
		return nil, apierr.Unauthenticated("you must be signed in")
	}

	result := &PermissionCheckResult{CheckedAt: pc.now()}
	profile := check.Profile

	if profile.NextStep != "" {
		result.Reason = "profile setup incomplete: " + profile.NextStep
		return result, nil
	}

	rule, ok := check.Access[check.Action]
	if !ok {
		result.Reason = fmt.Sprintf("no rule for %s on %s", check.Action, check.Collection)
		return result, nil
	}

	allow := func(reason string) (*PermissionCheckResult, error) {
		result.Allowed = true
		result.Reason = reason
		return result, nil
	}

	for _, g := range rule.Teams {
		if g.Kind == GrantAnyone {
			return allow("any team")
		}
	}
	for _, g := range rule.Users {
		if g.Kind == GrantAnyone {
			return allow("any user")
		}
	}

	userID := profile.ID.Hex()
	for _, g := range rule.Users {
		if g.Kind == GrantUserID && g.Value == userID {
			return allow("user granted")
		}
	}

	if check.Doc != nil {
		for _, g := range rule.Users {
			if g.Kind != GrantDocumentPath {
				continue
			}
			for _, id := range idsAt(check.Doc, g.Value) {
				if id == userID {
					return allow("user listed in document field " + g.Value)
				}
			}
		}
	}

	var slugs []string
	for _, g := range rule.Teams {
		switch g.Kind {
		case GrantTeamID:
			if profile.InTeam(g.Value) {
				return allow("team granted")
			}
		case GrantTeamSlug:
			slugs = append(slugs, g.Value)
		}
	}

	if len(slugs) > 0 && pc.teams != nil {
		ids, err := pc.teams.ResolveSlugs(ctx, slugs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve team slugs: %w", err)
		}
		for _, slug := range slugs {
			if id, ok := ids[slug]; ok && profile.InTeam(id) {
				return allow("team " + slug + " granted")
			}
		}
	}

	result.Reason = fmt.Sprintf("%s on %s not granted", check.Action, check.Collection)
	return result, nil
}

// IsAdmin reports whether the profile is a member of the admin team
func (pc *PermissionChecker) IsAdmin(ctx context.Context, profile *Profile) (bool, error) {
	if profile == nil || pc.teams == nil {
		return false, nil
	}
	ids, err := pc.teams.ResolveSlugs(ctx, []string{AdminTeamSlug})
	if err != nil {
		return false, fmt.Errorf("failed to resolve admin team: %w", err)
	}
	id, ok := ids[AdminTeamSlug]
	return ok && profile.InTeam(id), nil
}

// Allowed is a convenience wrapper returning only the decision.
func Allowed(ctx context.Context, c Checker, check PermissionCheck) (bool, error) {
	res, err := c.CanDo(ctx, check)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

// idsAt collects user ids stored at a document path. The value may be a
// single id, a list of ids, or already resolved reference documents.
func idsAt(doc map[string]interface{}, path string) []string {
	value := schema.Get(doc, path)
	if value == nil {
		return nil
	}
	if items, ok := schema.AsSlice(value); ok {
		out := make([]string, 0, len(items))
		for _, item := range items {
			if id, ok := idOf(item); ok {
				out = append(out, id)
			}
		}
		return out
	}
	if id, ok := idOf(value); ok {
		return []string{id}
	}
	return nil
}

func idOf(v interface{}) (string, bool) {
	switch value := v.(type) {
	case primitive.ObjectID:
		return value.Hex(), true
	case string:
		return value, value != ""
	default:
		if m, ok := schema.AsMap(v); ok {
			return idOf(m["_id"])
		}
		return "", false
	}
}
