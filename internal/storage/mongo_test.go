package storage

import (
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestNewFilter(t *testing.T) {
	f := NewFilter("user_id", int64(42), "status", "pending")
	assert.Equal(t, Filter{"user_id": int64(42), "status": "pending"}, f)

	// Odd trailing element is dropped.
	f = NewFilter("user_id", int64(42), "dangling")
	assert.Equal(t, Filter{"user_id": int64(42)}, f)

	// Non-string key is dropped.
	f = NewFilter(1, "value", "status", "pending")
	assert.Equal(t, Filter{"status": "pending"}, f)
}

func TestFilterAdd(t *testing.T) {
	f := NewFilter("status", "pending").Add("mode", "br")
	assert.Equal(t, Filter{"status": "pending", "mode": "br"}, f)
}

func TestPrepareFilter(t *testing.T) {
	out := prepareFilter(Filter{"user_id": int64(42)})
	assert.Equal(t, bson.M{"user_id": int64(42)}, out)

	out = prepareFilter(nil)
	assert.Equal(t, bson.M{}, out)

	out = prepareFilter(Filter{"user_id": []int64{1, 2}}, included)
	assert.Equal(t, bson.M{"user_id": bson.M{"$in": []int64{1, 2}}}, out)

	out = prepareFilter(Filter{"created_at": "2026-01-01"}, from)
	assert.Equal(t, bson.M{"created_at": bson.M{"$gte": "2026-01-01"}}, out)
}

func TestMergeFilter(t *testing.T) {
	base := prepareFilter(Filter{"user_id": bson.M{"$in": []int64{1, 2}}})
	out := mergeFilter(base, Filter{"status": "approved"})
	assert.Equal(t, bson.M{
		"user_id": bson.M{"$in": []int64{1, 2}},
		"status":  "approved",
	}, out)
}

func TestPrepareUpdate(t *testing.T) {
	out := prepareUpdate(set, Updates{"banned": true})
	require.Contains(t, out, "$set")
	assert.Equal(t, bson.D{{Key: "banned", Value: true}}, out["$set"])
}

func TestIsDuplicateErr(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}
	assert.True(t, isDuplicateErr(dup))

	other := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 121}}}
	assert.False(t, isDuplicateErr(other))

	assert.False(t, isDuplicateErr(nil))
}

func TestStorageErrorTraits(t *testing.T) {
	err := ErrNotFound.New("admins")
	assert.True(t, errorx.IsNotFound(err))
	assert.False(t, errorx.IsDuplicate(err))

	err = ErrDuplicate.New("admin_roles")
	assert.True(t, errorx.IsDuplicate(err))
}

func TestDatabaseConfigValidate(t *testing.T) {
	cfg := DatabaseConfig{Address: "localhost:27017", DBName: "armory"}
	assert.NoError(t, cfg.Validate())

	cfg = DatabaseConfig{DBName: "armory"}
	assert.Error(t, cfg.Validate())

	// Username without password is rejected.
	cfg = DatabaseConfig{Address: "localhost:27017", DBName: "armory", Username: "user"}
	assert.Error(t, cfg.Validate())

	cfg.Password = "secret"
	assert.NoError(t, cfg.Validate())
}
