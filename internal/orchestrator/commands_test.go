package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"command":" Stop ","apply":true}`))
	require.NoError(t, err)
	assert.Equal(t, Command{Name: "stop", Apply: true}, cmd)

	_, err = ParseCommand([]byte(`{"apply":true}`))
	assert.Error(t, err)
	_, err = ParseCommand([]byte(`start`))
	assert.Error(t, err)
}

func TestExecuteDrivesPlayMode(t *testing.T) {
	f := newFixture(t, "mover", moverGraph)

	require.NoError(t, f.o.Execute(Command{Name: CommandStart}, "test"))
	require.NoError(t, f.o.Execute(Command{Name: CommandPause}, "test"))
	require.NoError(t, f.o.Execute(Command{Name: CommandStep}, "test"))
	assert.Equal(t, 1, f.o.Status().PendingSteps)
	require.NoError(t, f.o.Execute(Command{Name: CommandResume}, "test"))
	f.tick(t, 2)
	require.NoError(t, f.o.Execute(Command{Name: CommandStop, Apply: true}, "test"))

	x, _ := f.pos(t, "hero")
	assert.Equal(t, 12.0, x)

	var sources []interface{}
	for _, e := range f.journal.Snapshot() {
		if e.Name == "command.received" {
			sources = append(sources, e.Fields["source"])
		}
	}
	assert.Len(t, sources, 5)
	assert.Equal(t, "test", sources[0])
}

func TestExecuteRejectsUnknownCommand(t *testing.T) {
	f := newFixture(t, "mover", moverGraph)
	err := f.o.Execute(Command{Name: "rewind"}, "mqtt")
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Equal(t, []string{"graph.loaded", "command.received", "command.rejected"}, f.journalNames())
}

func TestExecuteKeyFeedsInput(t *testing.T) {
	f := newFixture(t, "jumper", jumperGraph)
	require.NoError(t, f.o.Start())

	require.NoError(t, f.o.Execute(Command{Name: CommandKey, Key: "space", Down: true}, "api"))
	f.tick(t, 1)
	_, y := f.pos(t, "hero")
	assert.Equal(t, 5.0, y)

	require.NoError(t, f.o.Execute(Command{Name: CommandKey, Key: "space"}, "api"))
	assert.False(t, f.o.Input().IsDown("space"))

	assert.Error(t, f.o.Execute(Command{Name: CommandKey, Down: true}, "api"))
}
