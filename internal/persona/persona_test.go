package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPersona() *Persona {
	return &Persona{
		Name:     "Youssef",
		Headline: "Software engineer",
		Education: []Entry{{
			Title:        "Bachelor of Applied Science in Software Engineering",
			Organization: "University of Ottawa",
			Period:       "2020 – 2024",
		}},
		Experience: []Entry{{
			Title:        "AI Researcher",
			Organization: "National Research Council",
			Details:      []string{"Built building agents."},
		}},
		Projects: []Project{{Name: "DFS", Description: "A replicated file store.", Technologies: []string{"Go"}}},
		Skills:   []string{"Go", "Python"},
		Facts:    []string{"Youssef enjoys climbing."},
	}
}

func TestPassages(t *testing.T) {
	got := testPersona().Passages()
	require.Len(t, got, 5)
	assert.Equal(t, "Youssef studied Bachelor of Applied Science in Software Engineering at University of Ottawa (2020 – 2024).", got[0])
	assert.Equal(t, "Youssef worked as AI Researcher at National Research Council. Built building agents.", got[1])
	assert.Equal(t, "Youssef built DFS: A replicated file store. Technologies: Go.", got[2])
	assert.Equal(t, "Youssef's skills include Go, Python.", got[3])
	assert.Equal(t, "Youssef enjoys climbing.", got[4])
}

func TestFormatForPrompt(t *testing.T) {
	out := testPersona().FormatForPrompt()
	assert.Contains(t, out, "Name: Youssef\n")
	assert.Contains(t, out, "\nEducation:\n- Bachelor of Applied Science in Software Engineering, University of Ottawa (2020 – 2024)\n")
	assert.Contains(t, out, "  - Built building agents.\n")
	assert.Contains(t, out, "- DFS: A replicated file store. (Go)")
	assert.Contains(t, out, "Skills: Go, Python")
	assert.NotContains(t, out, "Summary:")
}

func TestLoadFromFile(t *testing.T) {
	p, err := LoadFromFile(filepath.Join("..", "..", "configs", "persona.json"))
	require.NoError(t, err)
	assert.Equal(t, "Youssef", p.Name)
	assert.NotEmpty(t, p.Passages())

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"headline":"x"}`), 0o644))
	_, err = LoadFromFile(bad)
	require.Error(t, err)
}
