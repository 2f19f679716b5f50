package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/drewjocham/parsemodel/internal/jsonutil"
	"github.com/drewjocham/parsemodel/model"
	"github.com/drewjocham/parsemodel/models"
	"github.com/drewjocham/parsemodel/record"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MONGO_PASSWORD", "s3cret")

	cmd := NewRootCmd(models.Register)
	cmd.SetArgs(args)

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "help flag", args: []string{"--help"}},
		{name: "version command", args: []string{"version"}},
		{name: "invalid command", args: []string{"invalid"}, wantErr: true},
		{name: "get needs two args", args: []string{"get", "GameScore"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if tt.wantErr {
				assert.Error(t, err, out)
			} else {
				assert.NoError(t, err, out)
			}
		})
	}
}

func TestRootCommandHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)

	for _, expected := range []string{"parsemodel", "Available Commands:", "classes", "schema", "--show-config"} {
		assert.Contains(t, out, expected)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dev (commit: none")
}

func TestClassesTable(t *testing.T) {
	out, err := execute(t, "classes")
	require.NoError(t, err)

	assert.Contains(t, out, "CLASS")
	assert.Contains(t, out, "models.GameScore")
	assert.Contains(t, out, "player:*Player")
	assert.Contains(t, out, "joinedAt:date")
}

func TestClassesJSON(t *testing.T) {
	out, err := execute(t, "classes", "-o", "json")
	require.NoError(t, err)

	require.True(t, gjson.Valid(out), out)
	parsed := gjson.Parse(out)
	assert.Equal(t, int64(2), parsed.Get("#").Int())
	assert.Equal(t, "GameScore", parsed.Get("0.class").String())
	assert.Equal(t, "number", parsed.Get("0.fields.score").String())
	assert.Equal(t, "Player", parsed.Get("1.class").String())
}

func TestShowConfigMasksSecrets(t *testing.T) {
	out, err := execute(t, "version", "--show-config")
	require.ErrorIs(t, err, ErrShowConfigDisplayed)

	assert.Contains(t, out, `"password": "****"`)
	assert.NotContains(t, out, "s3cret")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute(t, "classes", "--config", "does-not-exist.env")
	assert.Error(t, err)
}

func TestTypedViewUsesRecordKeys(t *testing.T) {
	obj, err := record.NewWithoutData(models.GameScoreClass, "g1")
	require.NoError(t, err)
	require.NoError(t, obj.Set("score", 1337))
	require.NoError(t, obj.Set("playerName", "Ana"))
	require.NoError(t, obj.Set("player", record.Pointer{ClassName: models.PlayerClass, ObjectID: "p1"}))

	gs := &models.GameScore{}
	_, err = gs.Init(obj)
	require.NoError(t, err)
	require.NoError(t, model.Refresh(gs))

	view, err := typedView(gs)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, jsonutil.WriteIndented(&buf, view))
	out := gjson.Parse(buf.String())

	assert.Equal(t, "g1", out.Get("objectId").String())
	assert.Equal(t, "GameScore", out.Get("className").String())
	assert.Equal(t, int64(1337), out.Get("score").Int())
	assert.Equal(t, "Ana", out.Get("playerName").String())
	assert.Equal(t, "p1", out.Get("player.objectId").String())
	assert.False(t, out.Get("Score").Exists())
}

func TestNewLoggerForStdioCommands(t *testing.T) {
	cmd := newMCPCmd()
	assert.Equal(t, "true", cmd.Annotations[annotationStdio])

	logger, err := newLogger(cmd, &rootFlags{})
	require.NoError(t, err)
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })
	assert.Same(t, logger, zap.L())
}
