package llm

// Prompt is what a generator receives: a system instruction and the user turn,
// which already carries history, sources and the question.
type Prompt struct {
	System string
	User   string
}

// Flatten joins the two parts for backends that accept a single string.
func (p Prompt) Flatten() string {
	if p.System == "" {
		return p.User
	}
	return p.System + "\n\n" + p.User
}
