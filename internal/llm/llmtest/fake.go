// Package llmtest provides a scriptable in-memory llm.Client for tests.
package llmtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/supervity/company-research/internal/llm"
)

// Outcome is the scripted result of one call.
type Outcome struct {
	Text          string
	InputTokens   int
	OutputTokens  int
	// GroundingURLs are returned with the text.
	GroundingURLs []string
	// Kind makes the call fail with a classified error when non-empty.
	Kind llm.ErrorKind
	// Delay holds the call before it returns.
	Delay time.Duration
}

// Fake records calls and answers them from a script keyed by prompt substring.
type Fake struct {
	// Outcomes maps a prompt substring to its outcome. The longest matching key wins.
	Outcomes map[string]Outcome
	// Default is used when no key matches.
	Default Outcome

	sequences   map[string][]Outcome
	mu          sync.Mutex
	calls       []llm.Request
	inFlight    int
	maxInFlight int
	closed      bool
}

// New returns a Fake that answers every prompt with def.
func New(def Outcome) *Fake {
	return &Fake{Outcomes: make(map[string]Outcome), Default: def}
}

// On scripts the outcome for prompts containing substr.
func (f *Fake) On(substr string, o Outcome) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Outcomes[substr] = o
	return f
}

// OnSequence scripts successive outcomes for prompts containing substr. The last
// outcome repeats once the sequence is used up. Sequences take precedence over On.
func (f *Fake) OnSequence(substr string, outcomes ...Outcome) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sequences == nil {
		f.sequences = make(map[string][]Outcome)
	}
	f.sequences[substr] = outcomes
	return f
}

// Generate implements llm.Client.
func (f *Fake) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	o := f.match(req.Prompt)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if o.Delay > 0 {
		select {
		case <-time.After(o.Delay):
		case <-ctx.Done():
			return nil, &llm.Error{Kind: llm.KindTimeout, Provider: "fake", Cause: ctx.Err()}
		}
	}

	if o.Kind != "" {
		return nil, &llm.Error{Kind: o.Kind, Provider: "fake", Cause: fmt.Errorf("scripted %s", o.Kind)}
	}
	return &llm.Response{
		Text:          o.Text,
		InputTokens:   o.InputTokens,
		OutputTokens:  o.OutputTokens,
		GroundingURLs: o.GroundingURLs,
	}, nil
}

func (f *Fake) match(prompt string) Outcome {
	for k, seq := range f.sequences {
		if len(seq) > 0 && strings.Contains(prompt, k) {
			o := seq[0]
			if len(seq) > 1 {
				f.sequences[k] = seq[1:]
			}
			return o
		}
	}

	keys := make([]string, 0, len(f.Outcomes))
	for k := range f.Outcomes {
		if strings.Contains(prompt, k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return f.Default
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return f.Outcomes[keys[0]]
}

// Close implements llm.Client.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Calls returns a copy of the recorded requests.
func (f *Fake) Calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// MaxInFlight is the highest number of concurrent calls observed.
func (f *Fake) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
