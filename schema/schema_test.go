package schema

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/drewjocham/parsemodel/model"
	"github.com/drewjocham/parsemodel/record"
)

type player struct {
	model.Model
	Name     string             `parse:"name"`
	JoinedAt *time.Time         `parse:"joinedAt"`
	Level    uint8              `parse:"level"`
	Badges   []string           `parse:"badges"`
	Settings map[string]any     `parse:"settings"`
	Rival    record.Pointer     `parse:"rival" class:"Player"`
	Extra    any                `parse:"extra"`
	Stats    map[string]float64 `parse:"stats"`
	Active   bool               `parse:"active"`
}

type untargeted struct {
	model.Model
	Owner record.Pointer `parse:"owner"`
}

func TestDerive(t *testing.T) {
	c, err := Derive("Player", reflect.TypeFor[player]())
	require.NoError(t, err)

	assert.Equal(t, "Player", c.Name)
	assert.Equal(t, map[string]FieldType{
		"name":     TypeString,
		"joinedAt": TypeDate,
		"level":    TypeNumber,
		"badges":   TypeArray,
		"settings": TypeObject,
		"rival":    "*Player",
		"extra":    TypeObject,
		"stats":    TypeObject,
		"active":   TypeBoolean,
	}, c.Fields)
	assert.True(t, c.Fields["rival"].IsPointer())
	assert.Equal(t, []string{"active", "badges", "extra", "joinedAt", "level", "name", "rival", "settings", "stats"}, c.FieldNames())
}

func TestDeriveErrors(t *testing.T) {
	_, err := Derive("Owned", reflect.TypeFor[untargeted]())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class tag")

	_, err = Derive("bad name", reflect.TypeFor[player]())
	assert.ErrorIs(t, err, record.ErrInvalidClassName)
}

func TestFromRegistrySkipsFactoryOnlyClasses(t *testing.T) {
	reg := model.NewRegistry()
	require.NoError(t, model.RegisterType[player](reg, "Player"))
	reg.MustRegister("Legacy", func(obj *record.Object) (model.Wrapper, error) { return model.New(obj) })

	classes, err := FromRegistry(reg)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "Player", classes[0].Name)
}

func TestDiff(t *testing.T) {
	c := Class{Name: "GameScore", Fields: map[string]FieldType{
		"score":  TypeNumber,
		"player": PointerTo("Player"),
		"tags":   TypeArray,
	}}

	missing, conflicts := Diff(c, map[string]FieldType{
		"objectId": TypeString,
		"score":    TypeString,
		"player":   "*Player",
	})
	assert.Equal(t, []string{"tags"}, missing)
	assert.Equal(t, []Conflict{{Field: "score", Want: TypeNumber, Have: TypeString}}, conflicts)
	assert.Equal(t, "score: model says number, backend has string", conflicts[0].String())

	missing, conflicts = Diff(c, nil)
	assert.Equal(t, []string{"player", "score", "tags"}, missing)
	assert.Empty(t, conflicts)
}

func TestStatusUpToDate(t *testing.T) {
	assert.True(t, Status{InBackend: true}.UpToDate())
	assert.False(t, Status{InBackend: false}.UpToDate())
	assert.False(t, Status{InBackend: true, MissingFields: []string{"x"}}.UpToDate())
}

func TestIsTransactionNotSupported(t *testing.T) {
	assert.True(t, isTransactionNotSupported(mongoCommandError(20, "IllegalOperation")))
	assert.True(t, isTransactionNotSupported(mongoCommandError(1, "Transaction numbers are only allowed on a replica set member or mongos")))
	assert.False(t, isTransactionNotSupported(mongoCommandError(11000, "duplicate key")))
}

func mongoCommandError(code int32, msg string) error {
	return mongo.CommandError{Code: code, Message: msg}
}
