package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Persona is the portfolio owner's biography.
type Persona struct {
	Name       string    `json:"name"`
	Headline   string    `json:"headline"`
	Summary    string    `json:"summary"`
	Education  []Entry   `json:"education"`
	Experience []Entry   `json:"experience"`
	Projects   []Project `json:"projects"`
	Skills     []string  `json:"skills"`
	Facts      []string  `json:"facts"`
}

// Entry is a degree or a position.
type Entry struct {
	Title        string   `json:"title"`
	Organization string   `json:"organization"`
	Location     string   `json:"location"`
	Period       string   `json:"period"`
	Details      []string `json:"details"`
}

type Project struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies"`
}

func LoadFromFile(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	var p Persona
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal persona: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("persona %s: name is required", path)
	}
	return &p, nil
}

// FormatForPrompt renders the whole biography as one context block.
func (p *Persona) FormatForPrompt() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	if p.Headline != "" {
		fmt.Fprintf(&b, "Headline: %s\n", p.Headline)
	}
	if p.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", p.Summary)
	}

	writeEntries(&b, "Education", p.Education)
	writeEntries(&b, "Experience", p.Experience)

	if len(p.Projects) > 0 {
		b.WriteString("\nProjects:\n")
		for _, pr := range p.Projects {
			fmt.Fprintf(&b, "- %s: %s", pr.Name, pr.Description)
			if len(pr.Technologies) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(pr.Technologies, ", "))
			}
			b.WriteString("\n")
		}
	}
	if len(p.Skills) > 0 {
		fmt.Fprintf(&b, "\nSkills: %s\n", strings.Join(p.Skills, ", "))
	}
	if len(p.Facts) > 0 {
		b.WriteString("\nOther facts:\n")
		for _, f := range p.Facts {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeEntries(b *strings.Builder, heading string, entries []Entry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", heading)
	for _, e := range entries {
		fmt.Fprintf(b, "- %s, %s", e.Title, e.Organization)
		if e.Location != "" {
			fmt.Fprintf(b, ", %s", e.Location)
		}
		if e.Period != "" {
			fmt.Fprintf(b, " (%s)", e.Period)
		}
		b.WriteString("\n")
		for _, d := range e.Details {
			fmt.Fprintf(b, "  - %s\n", d)
		}
	}
}

// Passages splits the biography into standalone sentences for embedding.
// Each passage names the owner so it reads correctly out of context.
func (p *Persona) Passages() []string {
	var out []string
	if p.Summary != "" {
		out = append(out, p.Summary)
	}
	for _, e := range p.Education {
		out = append(out, entryPassage(fmt.Sprintf("%s studied %s at %s", p.Name, e.Title, e.Organization), e))
	}
	for _, e := range p.Experience {
		out = append(out, entryPassage(fmt.Sprintf("%s worked as %s at %s", p.Name, e.Title, e.Organization), e))
	}
	for _, pr := range p.Projects {
		s := fmt.Sprintf("%s built %s: %s", p.Name, pr.Name, pr.Description)
		if len(pr.Technologies) > 0 {
			s += " Technologies: " + strings.Join(pr.Technologies, ", ") + "."
		}
		out = append(out, s)
	}
	if len(p.Skills) > 0 {
		out = append(out, fmt.Sprintf("%s's skills include %s.", p.Name, strings.Join(p.Skills, ", ")))
	}
	out = append(out, p.Facts...)
	return out
}

func entryPassage(lead string, e Entry) string {
	s := lead
	if e.Period != "" {
		s += " (" + e.Period + ")"
	}
	s += "."
	if len(e.Details) > 0 {
		s += " " + strings.Join(e.Details, " ")
	}
	return s
}
