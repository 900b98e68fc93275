package audit

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ActivityCollection is the tenant collection receiving activity records
const ActivityCollection = "activities"

// ActivityModelName is the collection name that never records its own activity
const ActivityModelName = "Activity"

// EventType names a lifecycle transition. The same values are used for
// document history entries and activity records.
type EventType string

const (
	EventTypeCreated     EventType = "created"
	EventTypePatched     EventType = "patched"
	EventTypeHidden      EventType = "hidden"
	EventTypeUnhidden    EventType = "unhidden"
	EventTypeArchived    EventType = "archived"
	EventTypeUnarchived  EventType = "unarchived"
	EventTypeLocked      EventType = "locked"
	EventTypeUnlocked    EventType = "unlocked"
	EventTypeWatched     EventType = "watched"
	EventTypeUnwatched   EventType = "unwatched"
	EventTypePublished   EventType = "published"
	EventTypeUnpublished EventType = "unpublished"
	EventTypeDeleted     EventType = "deleted"
	EventTypeCloned      EventType = "cloned"
)

// Toggle picks the on or off event type for a boolean transition
func Toggle(on bool, whenOn, whenOff EventType) EventType {
	if on {
		return whenOn
	}
	return whenOff
}

// HistoryEntry is appended to a document's history array
type HistoryEntry struct {
	Type EventType          `bson:"type" json:"type"`
	User primitive.ObjectID `bson:"user" json:"user"`
	At   time.Time          `bson:"at" json:"at"`
}

// BSON returns the entry in the shape stored inside documents
func (h HistoryEntry) BSON() bson.M {
	return bson.M{"type": string(h.Type), "user": h.User, "at": h.At}
}

// Activity is a record of one mutation, written to the activity collection
type Activity struct {
	ID      primitive.ObjectID   `bson:"_id,omitempty" json:"_id,omitempty"`
	Name    string               `bson:"name" json:"name"`
	Type    EventType            `bson:"type" json:"type"`
	ColName string               `bson:"colName" json:"colName"`
	DocID   primitive.ObjectID   `bson:"docId" json:"docId"`
	UserIDs []primitive.ObjectID `bson:"userIds" json:"userIds"`
	At      time.Time            `bson:"at" json:"at"`
	Added   bson.M               `bson:"added,omitempty" json:"added,omitempty"`
	Deleted bson.M               `bson:"deleted,omitempty" json:"deleted,omitempty"`
	Updated bson.M               `bson:"updated,omitempty" json:"updated,omitempty"`
}

// NewActivity builds an activity for a document transition
func NewActivity(colName string, docID primitive.ObjectID, name string, eventType EventType, user primitive.ObjectID, at time.Time) *Activity {
	return &Activity{
		Name:    name,
		Type:    eventType,
		ColName: colName,
		DocID:   docID,
		UserIDs: []primitive.ObjectID{user},
		At:      at.UTC(),
	}
}

// WithDiff attaches the changes between two versions of a document
func (a *Activity) WithDiff(before, after map[string]interface{}) *Activity {
	d := Diff(before, after)
	a.Added, a.Deleted, a.Updated = d.Added, d.Deleted, d.Updated
	return a
}
