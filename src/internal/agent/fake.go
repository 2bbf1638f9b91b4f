package agent

import "context"

// Call records one Revise invocation made against a Fake.
type Call struct {
	Entry string
	Hints Hints
	Prefs string
}

// Fake implements Reviser for tests.
type Fake struct {
	Out   string
	Err   error
	Calls []Call
}

func (f *Fake) Revise(ctx context.Context, entryText string, h Hints, prefs string) (string, error) {
	f.Calls = append(f.Calls, Call{Entry: entryText, Hints: h, Prefs: prefs})
	return f.Out, f.Err
}
