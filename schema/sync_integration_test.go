//go:build integration

package schema_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/drewjocham/parsemodel/internal/testmongo"
	"github.com/drewjocham/parsemodel/schema"
)

func TestSyncAndStatus(t *testing.T) {
	env := testmongo.New(t)
	ctx := context.Background()
	syncer := schema.NewSyncer(env.Database)

	score := schema.Class{Name: "GameScore", Fields: map[string]schema.FieldType{
		"score":  schema.TypeNumber,
		"player": schema.PointerTo("Player"),
	}}

	status, err := syncer.Status(ctx, []schema.Class{score})
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.False(t, status[0].InBackend)
	assert.Equal(t, []string{"player", "score"}, status[0].MissingFields)

	res, err := syncer.Sync(ctx, []schema.Class{score})
	require.NoError(t, err)
	assert.Equal(t, []string{"GameScore"}, res.Created)

	var doc bson.M
	require.NoError(t, env.Database.Collection(schema.DefaultCollection).FindOne(ctx, bson.M{"_id": "GameScore"}).Decode(&doc))
	assert.Equal(t, "*Player", doc["player"])
	assert.Equal(t, "string", doc["objectId"])

	status, err = syncer.Status(ctx, []schema.Class{score})
	require.NoError(t, err)
	assert.True(t, status[0].UpToDate())
	require.NotNil(t, status[0].SyncedAt)

	score.Fields["tags"] = schema.TypeArray
	res, err = syncer.Sync(ctx, []schema.Class{score})
	require.NoError(t, err)
	assert.Equal(t, []string{"GameScore"}, res.Updated)

	res, err = syncer.Sync(ctx, []schema.Class{score})
	require.NoError(t, err)
	assert.Equal(t, []string{"GameScore"}, res.Unchanged)
}

func TestSyncReportsConflicts(t *testing.T) {
	env := testmongo.New(t)
	ctx := context.Background()
	syncer := schema.NewSyncer(env.Database, schema.WithCollection("custom_schema"))

	_, err := env.Database.Collection("custom_schema").InsertOne(ctx, bson.M{"_id": "GameScore", "score": "string"})
	require.NoError(t, err)

	conflicting := schema.Class{Name: "GameScore", Fields: map[string]schema.FieldType{"score": schema.TypeNumber}}
	fresh := schema.Class{Name: "Player", Fields: map[string]schema.FieldType{"name": schema.TypeString}}

	res, err := syncer.Sync(ctx, []schema.Class{conflicting, fresh})
	require.ErrorIs(t, err, schema.ErrFieldTypeMismatch)
	assert.Equal(t, []string{"GameScore"}, res.Skipped)
	assert.Equal(t, []string{"Player"}, res.Created)

	status, err := syncer.Status(ctx, []schema.Class{conflicting})
	require.NoError(t, err)
	require.Len(t, status[0].Conflicts, 1)
	assert.Equal(t, schema.TypeString, status[0].Conflicts[0].Have)
}

func TestSyncLock(t *testing.T) {
	env := testmongo.New(t)
	ctx := context.Background()
	syncer := schema.NewSyncer(env.Database)

	_, err := env.Database.Collection(schema.DefaultCollection+"_lock").InsertOne(ctx, bson.M{"lock_id": "schema_sync_lock"})
	require.NoError(t, err)

	// The unique index is created by the first sync attempt, so the second
	// insert collides.
	_, err = syncer.Sync(ctx, nil)
	require.ErrorIs(t, err, schema.ErrLocked)

	require.NoError(t, syncer.ForceUnlock(ctx))
	_, err = syncer.Sync(ctx, nil)
	require.NoError(t, err)
}
