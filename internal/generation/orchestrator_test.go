package generation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supervity/company-research/internal/llm"
	"github.com/supervity/company-research/internal/llm/llmtest"
	"github.com/supervity/company-research/internal/sections"
	"github.com/supervity/company-research/internal/storage"
)

var ignoreTiming = cmpopts.IgnoreFields(SectionResult{}, "ElapsedSeconds", "ErrorMessage")

func newTestOrchestrator(t *testing.T, fake *llmtest.Fake, cat *sections.Catalog, opts Options) (*Orchestrator, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	opts.Catalog = cat
	return NewOrchestrator(NewGenerator(fake, store, nil), opts), store
}

func TestRun_OneEntryPerRequestedSection(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	cat := testCatalog(t, "a", "b", "c", "d", "e", "unused")
	fake := llmtest.New(llmtest.Outcome{Text: "ok", InputTokens: 1, OutputTokens: 1})
	orch, _ := newTestOrchestrator(t, fake, cat, Options{PoolSize: 2})

	report, err := orch.Run(context.Background(), testRequest(ids...))
	require.NoError(t, err)

	got := make([]string, 0, len(report.PerSection))
	for id, res := range report.PerSection {
		assert.Equal(t, id, res.ID)
		got = append(got, id)
	}
	sort.Strings(got)
	assert.Equal(t, ids, got)
	assert.Len(t, fake.Calls(), len(ids))
	assert.Empty(t, report.NotStarted)
	assert.False(t, report.Interrupted)
	assert.Equal(t, orch.RunID(), report.RunID)
}

func TestRun_OverallStatus(t *testing.T) {
	tests := []struct {
		name   string
		fake   *llmtest.Fake
		want   OverallStatus
		wantIn int
	}{
		{
			name: "all succeed",
			fake: llmtest.New(llmtest.Outcome{Text: "ok", InputTokens: 5, OutputTokens: 7}),
			want: AllSucceeded, wantIn: 15,
		},
		{
			name: "all fail",
			fake: llmtest.New(llmtest.Outcome{Kind: llm.KindTransport}),
			want: AllFailed, wantIn: 0,
		},
		{
			name: "mixed",
			fake: llmtest.New(llmtest.Outcome{Text: "ok", InputTokens: 5, OutputTokens: 7}).
				On(marker("b"), llmtest.Outcome{Kind: llm.KindInvalidResponse, InputTokens: 100}),
			want: PartialFailure, wantIn: 10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := testCatalog(t, "a", "b", "c")
			orch, _ := newTestOrchestrator(t, tt.fake, cat, Options{})

			report, err := orch.Run(context.Background(), testRequest("a", "b", "c"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, report.OverallStatus)
			assert.Equal(t, tt.wantIn, report.TotalInputTokens)
		})
	}
}

func TestComputeStatus(t *testing.T) {
	ok := SectionResult{Status: StatusSuccess}
	bad := SectionResult{Status: StatusFailed}
	assert.Equal(t, AllFailed, ComputeStatus(nil))
	assert.Equal(t, AllSucceeded, ComputeStatus(map[string]SectionResult{"a": ok, "b": ok}))
	assert.Equal(t, AllFailed, ComputeStatus(map[string]SectionResult{"a": bad}))
	assert.Equal(t, PartialFailure, ComputeStatus(map[string]SectionResult{"a": ok, "b": bad}))
}

func TestRun_TokenTotalsCountOnlySuccesses(t *testing.T) {
	cat := testCatalog(t, "a", "b", "c")
	fake := llmtest.New(llmtest.Outcome{Text: "ok", InputTokens: 3, OutputTokens: 4}).
		On(marker("c"), llmtest.Outcome{Text: "ok", InputTokens: 30, OutputTokens: 40})
	store := storage.NewMemory()
	// b succeeds at the model but fails to store, so its tokens must not count.
	orch := NewOrchestrator(NewGenerator(fake, selectiveStore{Memory: store, fail: "b"}, nil), Options{Catalog: cat})

	report, err := orch.Run(context.Background(), testRequest("a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, 33, report.TotalInputTokens)
	assert.Equal(t, 44, report.TotalOutputTokens)
	assert.Equal(t, KindStorage, report.PerSection["b"].Error)
	assert.Equal(t, PartialFailure, report.OverallStatus)

	sum := 0.0
	for _, res := range report.PerSection {
		sum += res.ElapsedSeconds
	}
	assert.InDelta(t, sum, report.TotalElapsed, 1e-9)
}

type selectiveStore struct {
	*storage.Memory
	fail string
}

func (s selectiveStore) Write(ctx context.Context, key storage.Key, text string) error {
	if key.SectionID == s.fail {
		return errors.New("write refused")
	}
	return s.Memory.Write(ctx, key, text)
}

func TestRun_PoolBound(t *testing.T) {
	ids := []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10"}
	cat := testCatalog(t, ids...)
	fake := llmtest.New(llmtest.Outcome{Text: "ok", Delay: 20 * time.Millisecond})
	orch, _ := newTestOrchestrator(t, fake, cat, Options{PoolSize: 3})

	report, err := orch.Run(context.Background(), testRequest(ids...))
	require.NoError(t, err)

	assert.Len(t, report.PerSection, len(ids))
	assert.LessOrEqual(t, fake.MaxInFlight(), 3)
	assert.GreaterOrEqual(t, fake.MaxInFlight(), 1)
}

func TestRun_QueueFollowsRequestOrder(t *testing.T) {
	ids := []string{"c", "a", "b"}
	cat := testCatalog(t, "a", "b", "c")
	fake := llmtest.New(llmtest.Outcome{Text: "ok"})
	orch, _ := newTestOrchestrator(t, fake, cat, Options{PoolSize: 1})

	_, err := orch.Run(context.Background(), testRequest(ids...))
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 3)
	for i, id := range ids {
		assert.Contains(t, calls[i].Prompt, marker(id))
	}
}

func TestRun_StopAfterCompletions(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	cat := testCatalog(t, ids...)
	fake := llmtest.New(llmtest.Outcome{Text: "ok", InputTokens: 1, OutputTokens: 1}).
		On(marker("b"), llmtest.Outcome{Kind: llm.KindRateLimited})

	const stopAfter = 2
	var orch *Orchestrator
	done := 0
	orch, _ = newTestOrchestrator(t, fake, cat, Options{
		PoolSize: 1,
		OnProgress: func(ev ProgressEvent) {
			if ev.Status == ProgressComplete || ev.Status == ProgressFailed {
				done++
				if done == stopAfter {
					orch.Stop()
				}
			}
		},
	})

	report, err := orch.Run(context.Background(), testRequest(ids...))
	require.NoError(t, err)

	assert.Len(t, report.PerSection, stopAfter)
	assert.Contains(t, report.PerSection, "a")
	assert.Contains(t, report.PerSection, "b")
	assert.Equal(t, []string{"c", "d", "e"}, report.NotStarted)
	assert.True(t, report.Interrupted)
	assert.True(t, orch.Stopped())
	assert.Equal(t, PartialFailure, report.OverallStatus)
	assert.Len(t, fake.Calls(), stopAfter)
}

func TestRun_ContextCancelStopsDispatch(t *testing.T) {
	ids := []string{"a", "b", "c"}
	cat := testCatalog(t, ids...)
	fake := llmtest.New(llmtest.Outcome{Text: "ok"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch, store := newTestOrchestrator(t, fake, cat, Options{
		PoolSize: 1,
		OnProgress: func(ev ProgressEvent) {
			if ev.Status == ProgressComplete {
				cancel()
			}
		},
	})

	report, err := orch.Run(ctx, testRequest(ids...))
	require.NoError(t, err)
	assert.Len(t, report.PerSection, 1)
	assert.Equal(t, AllSucceeded, report.OverallStatus)
	assert.Equal(t, []string{"b", "c"}, report.NotStarted)
	assert.Equal(t, 1, store.Len())
}

func TestRun_InFlightCallsFinishAfterStop(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	cat := testCatalog(t, ids...)
	fake := llmtest.New(llmtest.Outcome{Text: "ok", Delay: 50 * time.Millisecond})

	var once sync.Once
	var orch *Orchestrator
	orch, store := newTestOrchestrator(t, fake, cat, Options{
		PoolSize: 2,
		OnProgress: func(ev ProgressEvent) {
			if ev.Status == ProgressWorking {
				once.Do(orch.Stop)
			}
		},
	})

	report, err := orch.Run(context.Background(), testRequest(ids...))
	require.NoError(t, err)

	// Whatever started ran to completion and was stored, nothing failed because of the stop.
	for id, res := range report.PerSection {
		assert.Equal(t, StatusSuccess, res.Status, id)
	}
	assert.Equal(t, len(report.PerSection), store.Len())
	assert.Equal(t, len(ids), len(report.PerSection)+len(report.NotStarted))
	assert.True(t, report.Interrupted)
}

func TestRun_StopBeforeRun(t *testing.T) {
	cat := testCatalog(t, "a", "b")
	fake := llmtest.New(llmtest.Outcome{Text: "ok"})
	orch, _ := newTestOrchestrator(t, fake, cat, Options{})
	orch.Stop()

	report, err := orch.Run(context.Background(), testRequest("a", "b"))
	require.NoError(t, err)
	assert.Empty(t, report.PerSection)
	assert.Equal(t, AllFailed, report.OverallStatus)
	assert.Equal(t, []string{"a", "b"}, report.NotStarted)
	assert.Empty(t, fake.Calls())
}

func TestRun_ValidationErrors(t *testing.T) {
	cat := testCatalog(t, "a", "b")
	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"unknown section", func(r *Request) { r.SectionIDs = []string{"a", "zzz"} }, "section_ids"},
		{"duplicate section", func(r *Request) { r.SectionIDs = []string{"a", "a"} }, "section_ids"},
		{"empty selection", func(r *Request) { r.SectionIDs = nil }, "section_ids"},
		{"unsupported language", func(r *Request) { r.Language = "Klingon" }, "language"},
		{"missing company", func(r *Request) { r.TargetCompany = "  " }, "target_company"},
		{"missing requester", func(r *Request) { r.RequesterCompany = "" }, "requester_company"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := llmtest.New(llmtest.Outcome{Text: "ok"})
			orch, _ := newTestOrchestrator(t, fake, cat, Options{})
			req := testRequest("a", "b")
			tt.mutate(&req)

			report, err := orch.Run(context.Background(), req)
			assert.Nil(t, report)
			var verr *RequestValidationError
			require.True(t, errors.As(err, &verr), "got %T: %v", err, err)
			assert.Equal(t, tt.field, verr.Field)
			assert.True(t, IsValidationError(err))
			assert.Empty(t, fake.Calls(), "no generation may start")
		})
	}
}

func TestValidate_ReturnsSpecsInRequestOrder(t *testing.T) {
	cat := testCatalog(t, "a", "b", "c")

	specs, err := Validate(cat, testRequest("c", "a"))
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "c", specs[0].ID)
	assert.Equal(t, "a", specs[1].ID)
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(&sections.TemplateError{SectionID: "a", Message: "bad"}))
	assert.True(t, IsValidationError(&RequestValidationError{Field: "f", Message: "m"}))
	assert.False(t, IsValidationError(errors.New("other")))
}

func TestRun_RetryPolicy(t *testing.T) {
	t.Run("retries rate limited until success", func(t *testing.T) {
		cat := testCatalog(t, "a")
		fake := llmtest.New(llmtest.Outcome{Text: "never"}).
			OnSequence(marker("a"),
				llmtest.Outcome{Kind: llm.KindRateLimited},
				llmtest.Outcome{Kind: llm.KindTimeout},
				llmtest.Outcome{Text: "ok", InputTokens: 2, OutputTokens: 3})
		orch, _ := newTestOrchestrator(t, fake, cat, Options{Retry: RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}})

		report, err := orch.Run(context.Background(), testRequest("a"))
		require.NoError(t, err)
		res := report.PerSection["a"]
		assert.Equal(t, StatusSuccess, res.Status)
		assert.Equal(t, 3, res.Attempts)
		assert.Len(t, fake.Calls(), 3)
	})

	t.Run("does not retry invalid response", func(t *testing.T) {
		cat := testCatalog(t, "a")
		fake := llmtest.New(llmtest.Outcome{Kind: llm.KindInvalidResponse})
		orch, _ := newTestOrchestrator(t, fake, cat, Options{Retry: RetryPolicy{MaxAttempts: 5}})

		report, err := orch.Run(context.Background(), testRequest("a"))
		require.NoError(t, err)
		assert.Equal(t, 1, report.PerSection["a"].Attempts)
		assert.Len(t, fake.Calls(), 1)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		cat := testCatalog(t, "a")
		fake := llmtest.New(llmtest.Outcome{Kind: llm.KindTimeout})
		orch, _ := newTestOrchestrator(t, fake, cat, Options{Retry: RetryPolicy{MaxAttempts: 2}})

		report, err := orch.Run(context.Background(), testRequest("a"))
		require.NoError(t, err)
		res := report.PerSection["a"]
		assert.Equal(t, KindTimeout, res.Error)
		assert.Equal(t, 2, res.Attempts)
	})

	t.Run("default is a single attempt", func(t *testing.T) {
		cat := testCatalog(t, "a")
		fake := llmtest.New(llmtest.Outcome{Kind: llm.KindRateLimited})
		orch, _ := newTestOrchestrator(t, fake, cat, Options{})

		report, err := orch.Run(context.Background(), testRequest("a"))
		require.NoError(t, err)
		assert.Equal(t, 1, report.PerSection["a"].Attempts)
	})
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.delay(1))
	assert.Equal(t, 200*time.Millisecond, p.delay(2))
	assert.Equal(t, 400*time.Millisecond, p.delay(3))
	assert.Equal(t, 1, RetryPolicy{}.attempts())
}

func TestRun_ProgressEvents(t *testing.T) {
	cat := testCatalog(t, "a", "b")
	fake := llmtest.New(llmtest.Outcome{Text: "ok"}).On(marker("b"), llmtest.Outcome{Kind: llm.KindTimeout})

	var events []ProgressEvent
	orch, _ := newTestOrchestrator(t, fake, cat, Options{
		RunID:      "run-1",
		OnProgress: func(ev ProgressEvent) { events = append(events, ev) },
	})
	_, err := orch.Run(context.Background(), testRequest("a", "b"))
	require.NoError(t, err)

	byStatus := map[ProgressStatus][]string{}
	for _, ev := range events {
		assert.Equal(t, "run-1", ev.RunID)
		byStatus[ev.Status] = append(byStatus[ev.Status], ev.Section)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, byStatus[ProgressPending])
	assert.ElementsMatch(t, []string{"a", "b"}, byStatus[ProgressWorking])
	assert.Equal(t, []string{"a"}, byStatus[ProgressComplete])
	assert.Equal(t, []string{"b"}, byStatus[ProgressFailed])
	assert.Equal(t, ProgressPending, events[0].Status)
}

func TestRun_AcmeScenario(t *testing.T) {
	fake := llmtest.New(llmtest.Outcome{Kind: llm.KindTransport}).
		On("Corporate Profile, Strategic Overview", llmtest.Outcome{Text: "# Basic Information\n\nAcme makes anvils.", InputTokens: 10, OutputTokens: 20}).
		On("Vision, Purpose and Long-Term Direction", llmtest.Outcome{Kind: llm.KindTimeout})
	store := storage.NewMemory()
	orch := NewOrchestrator(NewGenerator(fake, store, nil), Options{})

	req := Request{
		TargetCompany:    "Acme Corp",
		RequesterCompany: "Supervity",
		Language:         sections.English,
		SectionIDs:       []string{"basic", "vision"},
	}
	report, err := orch.Run(context.Background(), req)
	require.NoError(t, err)

	want := map[string]SectionResult{
		"basic":  {ID: "basic", Status: StatusSuccess, Text: "# Basic Information\n\nAcme makes anvils.", InputTokens: 10, OutputTokens: 20, Attempts: 1},
		"vision": {ID: "vision", Status: StatusFailed, Error: KindTimeout, Attempts: 1},
	}
	if diff := cmp.Diff(want, report.PerSection, ignoreTiming); diff != "" {
		t.Errorf("per-section results mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, PartialFailure, report.OverallStatus)
	assert.Equal(t, 10, report.TotalInputTokens)
	assert.Equal(t, 20, report.TotalOutputTokens)

	text, err := store.Read(context.Background(), storage.Key{Company: "Acme Corp", Language: "English", SectionID: "basic"})
	require.NoError(t, err)
	assert.Equal(t, "# Basic Information\n\nAcme makes anvils.", text)
	_, err = store.Read(context.Background(), storage.Key{Company: "Acme Corp", Language: "English", SectionID: "vision"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Equal(t, []string{"basic"}, report.SucceededIDs())
}
