package record

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidClassNames(t *testing.T) {
	tests := []struct {
		name      string
		className string
		wantErr   bool
	}{
		{name: "plain", className: "GameScore"},
		{name: "system class", className: "_User"},
		{name: "digits and underscore", className: "Score_2"},
		{name: "empty", className: "", wantErr: true},
		{name: "leading digit", className: "2Score", wantErr: true},
		{name: "dash", className: "Game-Score", wantErr: true},
		{name: "double underscore", className: "__User", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := New(tt.className)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidClassName)
				assert.Nil(t, o)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.className, o.ClassName())
			assert.True(t, o.IsNew())
		})
	}
}

func TestSetValidatesKeys(t *testing.T) {
	o, err := New("GameScore")
	require.NoError(t, err)

	for _, key := range []string{"objectId", "createdAt", "updatedAt", "ACL", "className", "_private", "a.b", ""} {
		assert.ErrorIs(t, o.Set(key, 1), ErrInvalidKey, key)
	}
	require.NoError(t, o.Set("score", 10))
	assert.Equal(t, []string{"score"}, o.Keys())
}

func TestSetNormalizesValues(t *testing.T) {
	o, err := New("GameScore")
	require.NoError(t, err)

	at := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.FixedZone("x", 3600))
	player, err := NewWithoutData("Player", "abc123")
	require.NoError(t, err)

	require.NoError(t, o.Set("score", 42))
	require.NoError(t, o.Set("ratio", float32(0.5)))
	require.NoError(t, o.Set("playedAt", at))
	require.NoError(t, o.Set("player", player))
	require.NoError(t, o.Set("tags", []string{"a", "b"}))

	score, err := o.GetInt("score")
	require.NoError(t, err)
	assert.Equal(t, int64(42), score)

	ratio, err := o.GetFloat("ratio")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, ratio, 1e-9)

	played, err := o.GetTime("playedAt")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, played.Location())
	assert.Equal(t, 123*time.Millisecond, time.Duration(played.Nanosecond()))

	p, err := o.GetPointer("player")
	require.NoError(t, err)
	assert.Equal(t, Pointer{ClassName: "Player", ObjectID: "abc123"}, p)

	tags, ok := o.Get("tags")
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, tags)

	_, err = o.GetString("score")
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestDirtyTracking(t *testing.T) {
	o, err := New("GameScore")
	require.NoError(t, err)
	assert.False(t, o.IsDirty())

	require.NoError(t, o.Set("score", 1))
	require.NoError(t, o.Set("cheatMode", false))
	assert.Equal(t, []string{"cheatMode", "score"}, o.DirtyKeys())

	now := time.Now()
	o.MarkSaved("abcdefghij", now)
	assert.False(t, o.IsDirty())
	assert.False(t, o.IsNew())
	assert.Equal(t, o.CreatedAt(), o.UpdatedAt())

	o.Remove("cheatMode")
	o.Remove("missing")
	assert.Equal(t, []string{"cheatMode"}, o.RemovedKeys())
	assert.Empty(t, o.DirtyKeys())

	require.NoError(t, o.Set("cheatMode", true))
	assert.Empty(t, o.RemovedKeys())

	later := now.Add(time.Minute)
	o.MarkSaved("abcdefghij", later)
	assert.True(t, o.UpdatedAt().After(o.CreatedAt()))
}

func TestReplaceKeepsHandle(t *testing.T) {
	o, err := NewWithoutData("Player", "p1")
	require.NoError(t, err)
	require.NoError(t, o.Set("name", "local"))

	server, err := New("Player")
	require.NoError(t, err)
	require.NoError(t, server.Set("name", "server"))
	server.MarkSaved("p1", time.Now())

	o.Replace(server)
	name, err := o.GetString("name")
	require.NoError(t, err)
	assert.Equal(t, "server", name)
	assert.False(t, o.IsDirty())

	require.NoError(t, server.Set("name", "changed"))
	name, _ = o.GetString("name")
	assert.Equal(t, "server", name, "replace must copy, not alias, the field map")
}

func TestConcurrentAccess(t *testing.T) {
	o, err := New("GameScore")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			for j := range 100 {
				_ = o.Set(key, j)
				_, _ = o.Get(key)
				_ = o.Fields()
				_ = o.IsDirty()
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, o.Keys(), 4)
}

func TestNewObjectID(t *testing.T) {
	seen := make(map[string]struct{})
	for range 200 {
		id, err := NewObjectID()
		require.NoError(t, err)
		require.Len(t, id, 10)
		assert.Regexp(t, `^[A-Za-z0-9]{10}$`, id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 200)
}

func TestSetRejectsUnstorableValues(t *testing.T) {
	unsaved, err := New("Player")
	require.NoError(t, err)

	tests := []struct {
		name    string
		value   any
		wantErr error
	}{
		{name: "unsaved record", value: unsaved, wantErr: ErrUnsavedPointer},
		{name: "pointer without id", value: Pointer{ClassName: "Player"}, wantErr: ErrUnsavedPointer},
		{name: "nested unsaved record", value: []any{unsaved}, wantErr: ErrUnsavedPointer},
		{name: "nil record", value: (*Object)(nil), wantErr: ErrInvalidValue},
		{name: "nil pointer", value: (*Pointer)(nil), wantErr: ErrInvalidValue},
		{name: "uint64 overflow", value: uint64(math.MaxUint64), wantErr: ErrInvalidValue},
		{name: "uint overflow in map", value: map[string]any{"n": uint(math.MaxUint64)}, wantErr: ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := New("GameScore")
			require.NoError(t, err)

			assert.NotPanics(t, func() {
				err = o.Set("player", tt.value)
			})
			assert.ErrorIs(t, err, tt.wantErr)
			_, ok := o.Get("player")
			assert.False(t, ok)
			assert.False(t, o.IsDirty())
		})
	}
}

func TestSetAcceptsLargestUint(t *testing.T) {
	o, err := New("GameScore")
	require.NoError(t, err)

	require.NoError(t, o.Set("n", uint64(math.MaxInt64)))
	n, err := o.GetInt("n")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), n)
}

func TestSetPointerToSelf(t *testing.T) {
	o, err := NewWithoutData("Player", "self000001")
	require.NoError(t, err)

	require.NoError(t, o.Set("friend", o))
	p, err := o.GetPointer("friend")
	require.NoError(t, err)
	assert.Equal(t, "self000001", p.ObjectID)
}
