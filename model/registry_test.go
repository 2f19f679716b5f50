package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewjocham/parsemodel/record"
)

type gameScore struct {
	Model
	Score      int64          `parse:"score" validate:"gte=0"`
	PlayerName string         `parse:"playerName" validate:"required"`
	CheatMode  bool           `parse:"cheatMode"`
	Player     record.Pointer `parse:"player" class:"Player"`
	Tags       []string       `parse:"tags,omitempty"`
	PlayedAt   time.Time      `parse:"playedAt"`
	Nickname   *string        `parse:"nickname"`
}

func (*gameScore) ParseClassName() string { return "GameScore" }

type badKey struct {
	Model
	ID string `parse:"objectId"`
}

type badType struct {
	Model
	C chan int `parse:"c"`
}

func TestRegisterType(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterType[gameScore](reg, ""))

	assert.Equal(t, []string{"GameScore"}, reg.Classes())
	assert.Equal(t, 1, reg.Len())

	typ, ok := reg.Type("GameScore")
	require.True(t, ok)
	assert.Equal(t, "gameScore", typ.Name())

	_, ok = reg.Lookup("GameScore")
	assert.True(t, ok)
	_, ok = reg.Lookup("Player")
	assert.False(t, ok)
}

func TestRegisterErrors(t *testing.T) {
	noop := func(obj *record.Object) (Wrapper, error) { return New(obj) }

	tests := []struct {
		name    string
		run     func(*Registry) error
		wantErr error
	}{
		{
			name: "duplicate class",
			run: func(r *Registry) error {
				if err := r.Register("Player", noop); err != nil {
					return err
				}
				return r.Register("Player", noop)
			},
			wantErr: ErrDuplicateClass,
		},
		{
			name:    "invalid class name",
			run:     func(r *Registry) error { return r.Register("no-dash", noop) },
			wantErr: record.ErrInvalidClassName,
		},
		{
			name:    "nil factory",
			run:     func(r *Registry) error { return r.Register("Player", nil) },
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "reserved key",
			run:     func(r *Registry) error { return RegisterType[badKey](r, "Bad") },
			wantErr: record.ErrInvalidKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(NewRegistry()), tt.wantErr)
		})
	}

	err := RegisterType[badType](NewRegistry(), "Bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	reg := NewRegistry()
	f := func(obj *record.Object) (Wrapper, error) { return New(obj) }
	reg.MustRegister("Player", f)
	assert.Panics(t, func() { reg.MustRegister("Player", f) })
}

func TestWrap(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterType[gameScore](reg, ""))

	obj := newRecord(t, "GameScore")
	require.NoError(t, obj.Set("score", 1337))
	require.NoError(t, obj.Set("playerName", "Sean Plott"))
	require.NoError(t, obj.Set("tags", []string{"a"}))
	require.NoError(t, obj.Set("nickname", "seanp"))
	require.NoError(t, obj.Set("player", record.Pointer{ClassName: "Player", ObjectID: "p1"}))

	w, err := reg.Wrap(obj)
	require.NoError(t, err)
	gs, ok := w.(*gameScore)
	require.True(t, ok, "got %T", w)

	assert.Same(t, obj, gs.ParseObject())
	assert.Equal(t, int64(1337), gs.Score)
	assert.Equal(t, "Sean Plott", gs.PlayerName)
	assert.Equal(t, []string{"a"}, gs.Tags)
	assert.Equal(t, "p1", gs.Player.ObjectID)
	require.NotNil(t, gs.Nickname)
	assert.Equal(t, "seanp", *gs.Nickname)
}

func TestWrapUnknownClass(t *testing.T) {
	obj := newRecord(t, "Unregistered")

	w, err := NewRegistry().Wrap(obj)
	require.NoError(t, err)
	m, ok := w.(*Model)
	require.True(t, ok)
	assert.Same(t, obj, m.ParseObject())

	_, err = NewRegistry(WithStrict(true)).Wrap(obj)
	assert.ErrorIs(t, err, ErrUnknownClass)
}

func TestWrapNil(t *testing.T) {
	_, err := NewRegistry().Wrap(nil)
	assert.ErrorIs(t, err, ErrNilObject)
}

func TestWrapRejectsForeignFactoryResult(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("Player", func(*record.Object) (Wrapper, error) {
		other, err := record.New("Player")
		if err != nil {
			return nil, err
		}
		return New(other)
	})

	_, err := reg.Wrap(newRecord(t, "Player"))
	assert.ErrorIs(t, err, ErrBadFactory)
}

func TestWrapPropagatesFactoryError(t *testing.T) {
	boom := errors.New("boom")
	reg := NewRegistry()
	reg.MustRegister("Player", func(*record.Object) (Wrapper, error) { return nil, boom })

	_, err := reg.Wrap(newRecord(t, "Player"))
	assert.ErrorIs(t, err, boom)
}

func TestFactoryRejectsOtherClass(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterType[gameScore](reg, ""))
	f, ok := reg.Lookup("GameScore")
	require.True(t, ok)

	_, err := f(newRecord(t, "Player"))
	assert.ErrorIs(t, err, ErrClassMismatch)
}

func TestDefaultRegistry(t *testing.T) {
	require.NoError(t, RegisterModel[gameScore]("DefaultGameScore"))
	assert.Contains(t, Default().Classes(), "DefaultGameScore")
	assert.ErrorIs(t, RegisterModel[gameScore]("DefaultGameScore"), ErrDuplicateClass)
}
