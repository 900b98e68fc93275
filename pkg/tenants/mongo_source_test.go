package tenants

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestToEvent(t *testing.T) {
	id := primitive.NewObjectID()
	tenant := &Tenant{ID: id, Name: "paladin"}

	for _, op := range []string{"insert", "update", "replace"} {
		ev := changeEvent{OperationType: op, FullDocument: tenant}
		e, ok := toEvent(ev)
		assert.True(t, ok, op)
		assert.Equal(t, EventUpsert, e.Type)
		assert.Equal(t, "paladin", e.Tenant.Name)
	}

	_, ok := toEvent(changeEvent{OperationType: "update"})
	assert.False(t, ok, "updates of deleted tenants have no full document")

	del := changeEvent{OperationType: "delete"}
	del.DocumentKey.ID = id
	e, ok := toEvent(del)
	assert.True(t, ok)
	assert.Equal(t, EventDelete, e.Type)
	assert.Equal(t, id, e.Tenant.ID)
	assert.Empty(t, e.Tenant.Name)

	_, ok = toEvent(changeEvent{OperationType: "invalidate"})
	assert.False(t, ok)
}
