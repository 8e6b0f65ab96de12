package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"token-screener/internal/domain"
	"token-screener/internal/ingestion/stub"
	"token-screener/internal/sources"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var observed = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fastOptions() Options {
	return Options{RetryDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, FetchTimeout: time.Second}
}

func symbols(records []*domain.CandidateRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Symbol
	}
	return out
}

func retryable(source domain.Source) error {
	return &sources.FetchError{Source: source, StatusCode: 429, Retryable: true, Err: errors.New("rate limited")}
}

func terminal(source domain.Source) error {
	return &sources.FetchError{Source: source, StatusCode: 401, Err: errors.New("unauthorized")}
}

func TestCollector_BudgetSplitAcrossSources(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			first := sources.NewStatic(domain.SourceCoinGecko, stub.Records(domain.SourceCoinGecko, "A", 3, observed))
			second := sources.NewStatic(domain.SourceDexScreener, stub.Records(domain.SourceDexScreener, "B", 3, observed))

			opts := fastOptions()
			opts.Parallel = parallel
			batch, err := NewCollector(opts).Collect(context.Background(), []sources.Adapter{first, second}, 4)
			require.NoError(t, err)

			assert.Equal(t, []string{"A0", "A1", "A2", "B0"}, symbols(batch.Records))
			require.Len(t, batch.Reports, 2)
			assert.Equal(t, 3, batch.Reports[0].Records)
			assert.Equal(t, 1, batch.Reports[1].Records)
		})
	}
}

func TestCollector_TruncatesLastPage(t *testing.T) {
	a := stub.NewScriptedAdapter(domain.SourceStatic, 5,
		stub.Step{Records: stub.Records(domain.SourceStatic, "P", 5, observed)},
		stub.Step{Records: stub.Records(domain.SourceStatic, "Q", 5, observed)},
	)

	batch, err := NewCollector(fastOptions()).Collect(context.Background(), []sources.Adapter{a}, 7)
	require.NoError(t, err)

	assert.Len(t, batch.Records, 7)
	assert.Equal(t, 2, a.Calls(), "budget reached; no third fetch")
}

func TestCollector_FailureOnLaterPageKeepsEarlierRecords(t *testing.T) {
	failing := stub.NewScriptedAdapter(domain.SourceCoinGecko, 2,
		stub.Step{Records: stub.Records(domain.SourceCoinGecko, "P1-", 2, observed)},
		stub.Step{Err: terminal(domain.SourceCoinGecko)},
		stub.Step{Records: stub.Records(domain.SourceCoinGecko, "P3-", 2, observed)},
		stub.Step{Records: stub.Records(domain.SourceCoinGecko, "P4-", 2, observed)},
		stub.Step{Records: stub.Records(domain.SourceCoinGecko, "P5-", 2, observed)},
	)
	healthy := sources.NewStatic(domain.SourceDexScreener, stub.Records(domain.SourceDexScreener, "D", 2, observed))

	batch, err := NewCollector(fastOptions()).Collect(context.Background(), []sources.Adapter{failing, healthy}, 100)
	require.NoError(t, err)

	assert.Equal(t, []string{"P1-0", "P1-1", "D0", "D1"}, symbols(batch.Records))
	assert.NotEmpty(t, batch.Reports[0].Err)
	assert.Equal(t, 1, batch.Reports[0].Pages)
	assert.Empty(t, batch.Reports[1].Err)
	assert.Equal(t, 2, failing.Calls(), "terminal errors are not retried")
}

func TestCollector_RetriesRetryableErrors(t *testing.T) {
	a := stub.NewScriptedAdapter(domain.SourceCoinGecko, 2,
		stub.Step{Err: retryable(domain.SourceCoinGecko)},
		stub.Step{Err: retryable(domain.SourceCoinGecko)},
		stub.Step{Records: stub.Records(domain.SourceCoinGecko, "R", 2, observed)},
	)

	batch, err := NewCollector(fastOptions()).Collect(context.Background(), []sources.Adapter{a}, 10)
	require.NoError(t, err)

	assert.Len(t, batch.Records, 2)
	assert.Empty(t, batch.Reports[0].Err)
	assert.Equal(t, []string{"", "", ""}, a.Cursors(), "retries refetch the same page")
}

func TestCollector_RetriesExhausted(t *testing.T) {
	steps := make([]stub.Step, 5)
	for i := range steps {
		steps[i] = stub.Step{Err: retryable(domain.SourceCoinGecko)}
	}
	a := stub.NewScriptedAdapter(domain.SourceCoinGecko, 2, steps...)

	opts := fastOptions()
	opts.MaxRetries = 2
	batch, err := NewCollector(opts).Collect(context.Background(), []sources.Adapter{a}, 10)
	require.NoError(t, err)

	assert.Empty(t, batch.Records)
	assert.Equal(t, 3, a.Calls())
	assert.Contains(t, batch.Reports[0].Err, "retries exhausted")
}

func TestCollector_FetchTimeoutEndsSource(t *testing.T) {
	slow := stub.NewScriptedAdapter(domain.SourceCoinGecko, 2,
		stub.Step{Records: stub.Records(domain.SourceCoinGecko, "S", 2, observed)},
		stub.Step{Delay: time.Second, Records: stub.Records(domain.SourceCoinGecko, "late", 2, observed)},
	)
	fast := sources.NewStatic(domain.SourceDexScreener, stub.Records(domain.SourceDexScreener, "F", 1, observed))

	opts := fastOptions()
	opts.FetchTimeout = 20 * time.Millisecond
	batch, err := NewCollector(opts).Collect(context.Background(), []sources.Adapter{slow, fast}, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"S0", "S1", "F0"}, symbols(batch.Records))
	assert.Contains(t, batch.Reports[0].Err, "timeout")
	assert.Equal(t, 2, slow.Calls(), "timeouts are not retried")
}

func TestCollector_InvalidBudget(t *testing.T) {
	_, err := NewCollector(fastOptions()).Collect(context.Background(), nil, 0)
	assert.ErrorIs(t, err, ErrInvalidBudget)
}

func TestCollector_NoAdapters(t *testing.T) {
	batch, err := NewCollector(fastOptions()).Collect(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Empty(t, batch.Records)
	assert.Empty(t, batch.Reports)
}

func TestCollector_UnusablePageSizeSkipsSource(t *testing.T) {
	broken := stub.NewScriptedAdapter(domain.SourceCoinGecko, 0)
	good := sources.NewStatic(domain.SourceDexScreener, stub.Records(domain.SourceDexScreener, "B", 2, observed))

	batch, err := NewCollector(fastOptions()).Collect(context.Background(), []sources.Adapter{broken, good}, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"B0", "B1"}, symbols(batch.Records))
	assert.Contains(t, batch.Reports[0].Err, sources.ErrInvalidPageSize.Error())
	assert.Zero(t, broken.Calls())
}

func TestCollector_NeverExceedsBudget(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		nSources := 1 + rng.Intn(3)
		adapters := make([]sources.Adapter, nSources)
		total := 0
		for s := range adapters {
			nPages := rng.Intn(4)
			pages := make([][]*domain.CandidateRecord, nPages)
			for p := range pages {
				n := rng.Intn(7)
				pages[p] = stub.Records(domain.SourceStatic, fmt.Sprintf("s%dp%d-", s, p), n, observed)
				total += n
			}
			adapters[s] = sources.NewStatic(domain.SourceStatic, pages...)
		}
		maxTotal := 1 + rng.Intn(20)
		pageSize := rng.Intn(8)

		var outputs [2][]string
		for m, parallel := range []bool{false, true} {
			opts := fastOptions()
			opts.Parallel = parallel
			opts.PageSize = pageSize
			batch, err := NewCollector(opts).Collect(context.Background(), adapters, maxTotal)
			require.NoError(t, err)

			require.LessOrEqual(t, len(batch.Records), maxTotal, "iteration %d parallel=%v", i, parallel)
			outputs[m] = symbols(batch.Records)
		}
		assert.Equal(t, outputs[0], outputs[1], "iteration %d: modes disagree", i)
	}
}
