package parser

// Chunk is one passage-sized piece of a biography source.
type Chunk struct {
	Source  string // file the chunk came from
	Heading string // nearest section heading, if any
	Text    string
}

// Passage is the text that gets embedded: heading and body together so the
// chunk keeps its meaning on its own.
func (c Chunk) Passage() string {
	if c.Heading == "" {
		return c.Text
	}
	return c.Heading + ": " + c.Text
}
