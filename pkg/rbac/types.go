package rbac

import (
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/schema"
)

// Action is a named operation on a collection
type Action string

const (
	ActionGet                  Action = "get"
	ActionCreate               Action = "create"
	ActionModify               Action = "modify"
	ActionHide                 Action = "hide"
	ActionLock                 Action = "lock"
	ActionArchive              Action = "archive"
	ActionWatch                Action = "watch"
	ActionDelete               Action = "delete"
	ActionPublish              Action = "publish"
	ActionBypassDocPermissions Action = "bypassDocPermissions"
	ActionDeactivate           Action = "deactivate"
)

// Actions lists every action in a stable order
var Actions = []Action{
	ActionGet,
	ActionCreate,
	ActionModify,
	ActionHide,
	ActionLock,
	ActionArchive,
	ActionWatch,
	ActionDelete,
	ActionPublish,
	ActionBypassDocPermissions,
	ActionDeactivate,
}

// AdminTeamSlug is the slug of the team whose members see every document
const AdminTeamSlug = "admin"

// AnyUserID is the reserved id that, placed in a document's
// permissions.users, lets any caller access that one document. It is a
// document-level mechanism, distinct from the Anyone grant in static action
// configuration.
var AnyUserID = primitive.ObjectID{}

// GrantKind tags a permission grant
type GrantKind int

const (
	GrantAnyone GrantKind = iota
	GrantTeamID
	GrantTeamSlug
	GrantUserID
	GrantDocumentPath
)

func (k GrantKind) String() string {
	switch k {
	case GrantAnyone:
		return "anyone"
	case GrantTeamID:
		return "team_id"
	case GrantTeamSlug:
		return "team_slug"
	case GrantUserID:
		return "user_id"
	case GrantDocumentPath:
		return "document_path"
	default:
		return "unknown"
	}
}

// Grant is one entry of a rule's team or user list, classified once when the
// collection is generated.
type Grant struct {
	Kind  GrantKind
	Value string
}

// Raw returns the configuration form of the grant.
func (g Grant) Raw() interface{} {
	if g.Kind == GrantAnyone {
		return 0
	}
	return g.Value
}

// Rule lists who may perform one action
type Rule struct {
	Teams []Grant
	Users []Grant
}

// ActionAccess maps actions onto rules for a collection
type ActionAccess map[Action]Rule

// Profile is the authenticated caller as produced by the auth collaborator
type Profile struct {
	ID       primitive.ObjectID
	Tenant   string
	Name     string
	Email    string
	Teams    []string
	NextStep string
}

// InTeam reports whether the profile is a member of the team id
func (p *Profile) InTeam(teamID string) bool {
	if p == nil {
		return false
	}
	for _, t := range p.Teams {
		if t == teamID {
			return true
		}
	}
	return false
}

// PermissionCheck is the input of the evaluator
type PermissionCheck struct {
	Collection string
	Action     Action
	Access     ActionAccess
	Profile    *Profile
	// Doc is the candidate document for document-scoped user grants.
	Doc map[string]interface{}
}

// PermissionCheckResult is the evaluator's decision
type PermissionCheckResult struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// ParseActionAccess classifies a raw action-access configuration of the form
// {action: {teams: [...], users: [...]}}.
func ParseActionAccess(raw map[string]interface{}) (ActionAccess, error) {
	access := make(ActionAccess, len(raw))
	for action, value := range raw {
		m, ok := schema.AsMap(value)
		if !ok {
			return nil, fmt.Errorf("action %q must be an object with teams and users", action)
		}
		rule, err := ParseRule(m["teams"], m["users"])
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", action, err)
		}
		access[Action(action)] = rule
	}
	return access, nil
}

// ParseRule classifies raw team and user lists.
func ParseRule(teams, users interface{}) (Rule, error) {
	var rule Rule
	teamItems, _ := schema.AsSlice(teams)
	for _, item := range teamItems {
		g, err := parseGrant(item, true)
		if err != nil {
			return Rule{}, fmt.Errorf("teams: %w", err)
		}
		rule.Teams = append(rule.Teams, g)
	}
	userItems, _ := schema.AsSlice(users)
	for _, item := range userItems {
		g, err := parseGrant(item, false)
		if err != nil {
			return Rule{}, fmt.Errorf("users: %w", err)
		}
		rule.Users = append(rule.Users, g)
	}
	return rule, nil
}

func parseGrant(v interface{}, team bool) (Grant, error) {
	switch value := v.(type) {
	case int:
		return zeroGrant(int64(value))
	case int32:
		return zeroGrant(int64(value))
	case int64:
		return zeroGrant(value)
	case float64:
		if value != 0 {
			return Grant{}, fmt.Errorf("numeric grant %v is not the 0 sentinel", value)
		}
		return Grant{Kind: GrantAnyone}, nil
	case primitive.ObjectID:
		if team {
			return Grant{Kind: GrantTeamID, Value: value.Hex()}, nil
		}
		return Grant{Kind: GrantUserID, Value: value.Hex()}, nil
	case string:
		switch {
		case value == "0":
			return Grant{Kind: GrantAnyone}, nil
		case value == "":
			return Grant{}, fmt.Errorf("empty grant")
		case primitive.IsValidObjectID(value) && team:
			return Grant{Kind: GrantTeamID, Value: value}, nil
		case primitive.IsValidObjectID(value):
			return Grant{Kind: GrantUserID, Value: value}, nil
		case team:
			return Grant{Kind: GrantTeamSlug, Value: value}, nil
		default:
			return Grant{Kind: GrantDocumentPath, Value: value}, nil
		}
	default:
		return Grant{}, fmt.Errorf("unsupported grant %v (%T)", v, v)
	}
}

func zeroGrant(n int64) (Grant, error) {
	if n != 0 {
		return Grant{}, fmt.Errorf("numeric grant %s is not the 0 sentinel", strconv.FormatInt(n, 10))
	}
	return Grant{Kind: GrantAnyone}, nil
}

// Merge appends the grants of other onto a copy of a, action by action.
func (a ActionAccess) Merge(other ActionAccess) ActionAccess {
	out := make(ActionAccess, len(a)+len(other))
	for action, rule := range a {
		out[action] = Rule{
			Teams: append([]Grant(nil), rule.Teams...),
			Users: append([]Grant(nil), rule.Users...),
		}
	}
	for action, rule := range other {
		existing := out[action]
		existing.Teams = append(existing.Teams, rule.Teams...)
		existing.Users = append(existing.Users, rule.Users...)
		out[action] = existing
	}
	return out
}
