package rbac

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/schema"
)

// AccessFilter returns the query condition restricting documents to those
// the profile may access through their permissions field. The static
// sentinels 0 and "0" in permissions.teams and AnyUserID in
// permissions.users always match, so a nil profile still sees documents
// opened to everyone.
func AccessFilter(profile *Profile) bson.M {
	teams := bson.A{0, "0"}
	users := bson.A{AnyUserID}
	if profile != nil {
		for _, t := range profile.Teams {
			teams = append(teams, t)
		}
		users = append(users, profile.ID)
	}
	return bson.M{"$or": bson.A{
		bson.M{"permissions.teams": bson.M{"$in": teams}},
		bson.M{"permissions.users": bson.M{"$in": users}},
	}}
}

// DocumentVisible evaluates AccessFilter against an in-memory document.
func DocumentVisible(profile *Profile, doc map[string]interface{}) bool {
	perms, ok := schema.AsMap(doc["permissions"])
	if !ok {
		return false
	}

	for _, t := range toSlice(perms["teams"]) {
		switch v := t.(type) {
		case string:
			if v == "0" || profile.InTeam(v) {
				return true
			}
		case primitive.ObjectID:
			if profile.InTeam(v.Hex()) {
				return true
			}
		case int, int32, int64, float64:
			if fmt.Sprint(v) == "0" {
				return true
			}
		}
	}
	for _, u := range toSlice(perms["users"]) {
		id, ok := idOf(u)
		if !ok {
			continue
		}
		if id == AnyUserID.Hex() || (profile != nil && id == profile.ID.Hex()) {
			return true
		}
	}
	return false
}

func toSlice(v interface{}) []interface{} {
	s, _ := schema.AsSlice(v)
	return s
}
