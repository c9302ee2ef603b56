package chat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Youssef2430/portfolio/internal/ai"
)

func TestManager_ExchangesPerUser(t *testing.T) {
	m, err := NewManager(2, t.TempDir())
	require.NoError(t, err)

	m.AddExchange("alice", "q1", "a1")
	m.AddExchange("bob", "hi", "hello")
	m.AddExchange("alice", "q2", "a2")
	m.AddExchange("alice", "q3", "a3")

	got := m.History("alice")
	require.Len(t, got, 4)
	assert.Equal(t, ai.Message{Role: ai.RoleUser, Content: "q2"}, got[0])
	assert.Equal(t, ai.Message{Role: ai.RoleAssistant, Content: "a3"}, got[3])
	assert.Len(t, m.History("bob"), 2)
	assert.Nil(t, m.History("carol"))

	got[0].Content = "mutated"
	assert.Equal(t, "q2", m.History("alice")[0].Content)
}

func TestManager_Reset(t *testing.T) {
	m, err := NewManager(5, t.TempDir())
	require.NoError(t, err)

	m.AddExchange("alice", "q", "a")
	m.Reset("alice")
	assert.Empty(t, m.History("alice"))
	assert.Equal(t, 0, m.Len())
}

func TestManager_SaveAndRestore(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(5, dir)
	require.NoError(t, err)
	m.AddExchange("alice", "What did Youssef study?", "Software Engineering.")
	require.NoError(t, m.Save())

	restored, err := NewManager(5, dir)
	require.NoError(t, err)
	assert.Equal(t, m.History("alice"), restored.History("alice"))
}

func TestManager_CorruptFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions.json"), []byte("{not json"), 0o644))

	m, err := NewManager(5, dir)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}
