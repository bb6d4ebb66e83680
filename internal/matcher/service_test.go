package matcher

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/nocmatch/internal/cache"
	"github.com/Aman-CERP/nocmatch/internal/config"
	nocerrors "github.com/Aman-CERP/nocmatch/internal/errors"
	"github.com/Aman-CERP/nocmatch/internal/index"
	"github.com/Aman-CERP/nocmatch/internal/textnorm"
)

func TestService_Init_LoadsTaxonomy(t *testing.T) {
	svc, _ := newTestService(t)

	st := svc.Stats()

	assert.True(t, st.Ready)
	require.NotNil(t, st.Snapshot)
	assert.Equal(t, 3, st.Snapshot.Entries)
	assert.Equal(t, "brute", st.Snapshot.Backend)
	assert.Equal(t, "static-64", st.Snapshot.Model)
	assert.Equal(t, uint64(1), st.Snapshot.Generation)
	assert.True(t, st.Snapshot.TitleIndex)
	require.NotNil(t, st.LastRebuild)
	assert.Equal(t, 3, st.LastRebuild.Embedded)
	assert.Equal(t, 3, st.LastRebuild.TitlesEmbedded)
	assert.NotEmpty(t, st.LastRebuild.ID)
	assert.Equal(t, "closed", st.Breaker)
}

func TestService_MatchByTitle_SoftwareEngineerScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Given: "Software engineer" is in the taxonomy
	// When: matching the title with different casing
	exact, err := svc.MatchByTitle(ctx, "Software Engineer", 1)

	// Then: the entry is returned alone at score 1
	require.NoError(t, err)
	require.Len(t, exact, 1)
	assert.Equal(t, "21234", exact[0].Code)
	assert.Equal(t, 1.0, exact[0].Score)

	// When: matching an abbreviated title
	fuzzy, err := svc.MatchByTitle(ctx, "software engr", 3)

	// Then: the same entry ranks first below a perfect score
	require.NoError(t, err)
	require.NotEmpty(t, fuzzy)
	assert.Equal(t, "21234", fuzzy[0].Code)
	assert.Less(t, fuzzy[0].Score, 1.0)
}

func TestService_MatchByTitle_EveryTitleRanksItself(t *testing.T) {
	svc, _ := newTestService(t)

	for _, r := range baseRecords() {
		t.Run(r.Title, func(t *testing.T) {
			results, err := svc.MatchByTitle(context.Background(), r.Title, 2)

			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.Equal(t, r.Code, results[0].Code)
			assert.Equal(t, 1.0, results[0].Score)
		})
	}
}

func TestService_MatchByTitle_CodeShortcut(t *testing.T) {
	svc, emb := newTestService(t)
	before := emb.calls.Load()

	results, err := svc.MatchByTitle(context.Background(), "31301", 1)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "31301", results[0].Code)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, before, emb.calls.Load(), "code lookup must not embed")
}

func TestService_MatchByTitle_IsIdempotent(t *testing.T) {
	svc, emb := newTestService(t)
	ctx := context.Background()

	// Given: a query that reaches the fused stage
	first, err := svc.MatchByTitle(ctx, "wood worker", 3)
	require.NoError(t, err)
	calls := emb.calls.Load()

	// When: asking again without a rebuild
	second, err := svc.MatchByTitle(ctx, "wood worker", 3)

	// Then: the cached answer is identical and the embedder is not called
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, calls, emb.calls.Load())
	assert.Equal(t, uint64(1), svc.Stats().Cache.Hits)
}

func TestService_MatchByTitle_ReturnedSliceIsACopy(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.MatchByTitle(ctx, "carpenter", 1)
	require.NoError(t, err)
	first[0].Code = "mutated"

	second, err := svc.MatchByTitle(ctx, "carpenter", 1)

	require.NoError(t, err)
	assert.Equal(t, "73300", second[0].Code)
}

func TestService_Match_InputValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		query   string
		topK    int
		wantErr bool
		wantLen int
	}{
		{name: "empty query", query: "", topK: 3, wantErr: true},
		{name: "whitespace query", query: "   ", topK: 3, wantErr: true},
		{name: "zero topK", query: "nurse", topK: 0, wantLen: 0},
		{name: "negative topK", query: "nurse", topK: -2, wantLen: 0},
		{name: "punctuation only", query: "?!", topK: 3, wantLen: 0},
		{name: "topK larger than taxonomy", query: "worker", topK: 50, wantLen: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := svc.MatchByQuery(ctx, tt.query, tt.topK)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, nocerrors.ErrInvalidQuery)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, results)
			assert.Len(t, results, tt.wantLen)
		})
	}
}

func TestService_MatchByQuery_GatewayFailureIsNotCached(t *testing.T) {
	svc, emb := newTestService(t)
	query := "design and build systems"

	// Given: the embedding service goes down after the index is built
	emb.fail.Store(true)

	// When: a duties query needs a semantic score
	results, err := svc.MatchByQuery(context.Background(), query, 5)

	// Then: the call fails with RetrievalUnavailable and nothing is cached
	require.Error(t, err)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, nocerrors.ErrRetrievalUnavailable)
	_, cached := svc.cache.Get(cache.QueryKey(textnorm.Normalize(query), 5))
	assert.False(t, cached)
	assert.Equal(t, 0, svc.Stats().Cache.Size)
	assert.Equal(t, int64(1), svc.Stats().Queries.ErrorCounts[nocerrors.ErrCodeRetrievalUnavailable])
}

func TestService_MatchByQuery_ExactTitleSurvivesGatewayFailure(t *testing.T) {
	svc, emb := newTestService(t)
	emb.fail.Store(true)

	results, err := svc.MatchByTitle(context.Background(), "RN", 1)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "31301", results[0].Code)
}

func TestService_MatchByQuery_DegradesToDutyIndex(t *testing.T) {
	svc, emb := newTestService(t, func(c *config.Config) {
		c.Matcher.DegradeOnRetrievalFailure = true
	})
	query := "design and build software systems"
	emb.fail.Store(true)

	results, err := svc.MatchByQuery(context.Background(), query, 3)

	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "21234", results[0].Code)
	_, cached := svc.cache.Get(cache.QueryKey(textnorm.Normalize(query), 3))
	assert.False(t, cached, "degraded rankings must not be cached")
	assert.Equal(t, int64(1), svc.Stats().Queries.PathCounts["degraded"])
}

func TestService_Init_MissingTaxonomy(t *testing.T) {
	// Given: a configuration pointing at a file that does not exist
	cfg := testConfig(t)
	svc, err := New(cfg, WithEmbedder(newSwitchableEmbedder()))
	require.NoError(t, err)
	defer svc.Shutdown()

	// When: initializing
	err = svc.Init(context.Background())

	// Then: the data is reported unavailable and queries are refused
	require.Error(t, err)
	assert.ErrorIs(t, err, nocerrors.ErrDataUnavailable)
	assert.False(t, svc.Ready())

	_, err = svc.MatchByTitle(context.Background(), "Carpenter", 1)
	assert.ErrorIs(t, err, nocerrors.ErrNotReady)

	// When: the file appears and a rebuild is retried
	writeTaxonomy(t, cfg.Taxonomy.Path, baseRecords())
	n, err := svc.RebuildIndex(context.Background(), false)

	// Then: the service recovers
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, svc.Ready())
}

func TestService_RebuildIndex_EmptyTaxonomyKeepsSnapshot(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Given: the taxonomy file is truncated after a good build
	require.NoError(t, os.WriteFile(svc.TaxonomyPath(), nil, 0o644))

	// When: rebuilding
	n, err := svc.RebuildIndex(ctx, false)

	// Then: the rebuild fails and the old snapshot keeps serving
	require.Error(t, err)
	assert.ErrorIs(t, err, nocerrors.ErrDataUnavailable)
	assert.Zero(t, n)

	results, err := svc.MatchByTitle(ctx, "Carpenter", 1)
	require.NoError(t, err)
	assert.Equal(t, "73300", results[0].Code)
	assert.Equal(t, uint64(1), svc.Stats().Snapshot.Generation)
}

func TestService_RebuildIndex_InvalidatesCache(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Given: a cached answer for a title not in the taxonomy
	before, err := svc.MatchByTitle(ctx, "Data scientist", 1)
	require.NoError(t, err)
	require.NotEmpty(t, before)
	assert.NotEqual(t, "21211", before[0].Code)

	// When: the taxonomy gains that title and is rebuilt
	records := append(baseRecords(), record{
		Code:   "21211",
		Title:  "Data scientist",
		TEER:   "1",
		Duties: "Build statistical models from large data sets.",
	})
	writeTaxonomy(t, svc.TaxonomyPath(), records)
	n, err := svc.RebuildIndex(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// Then: the stale answer is gone
	after, err := svc.MatchByTitle(ctx, "Data scientist", 1)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "21211", after[0].Code)
	assert.Equal(t, 1.0, after[0].Score)

	st := svc.Stats()
	assert.Equal(t, uint64(2), st.Snapshot.Generation)
	assert.Equal(t, 3, st.LastRebuild.Reused)
	assert.Equal(t, 1, st.LastRebuild.Embedded)
}

func TestService_RebuildIndex_ReusesEmbeddingsAcrossRestarts(t *testing.T) {
	cfg := testConfig(t)
	writeTaxonomy(t, cfg.Taxonomy.Path, baseRecords())
	ctx := context.Background()

	first, err := New(cfg, WithEmbedder(newSwitchableEmbedder()))
	require.NoError(t, err)
	require.NoError(t, first.Init(ctx))
	require.NoError(t, first.Shutdown())

	// When: a new process opens the same data directory
	second, err := New(cfg, WithEmbedder(newSwitchableEmbedder()))
	require.NoError(t, err)
	defer second.Shutdown()
	require.NoError(t, second.Init(ctx))

	// Then: stored vectors are reused
	assert.Equal(t, 3, second.Stats().LastRebuild.Reused)
	assert.Equal(t, 0, second.Stats().LastRebuild.Embedded)

	// When: forcing a rebuild
	_, err = second.RebuildIndex(ctx, true)

	// Then: everything is embedded again
	require.NoError(t, err)
	assert.Equal(t, 3, second.Stats().LastRebuild.Embedded)
	assert.True(t, second.Stats().LastRebuild.Forced)
}

func TestService_RebuildIndex_EmbeddingFailureKeepsSnapshot(t *testing.T) {
	svc, emb := newTestService(t)
	records := append(baseRecords(), record{Code: "64100", Title: "Retail salesperson"})
	writeTaxonomy(t, svc.TaxonomyPath(), records)
	emb.fail.Store(true)

	_, err := svc.RebuildIndex(context.Background(), false)

	require.Error(t, err)
	assert.Equal(t, 3, svc.Stats().Snapshot.Entries)
}

func TestService_RebuildIndex_WaitsForFileLock(t *testing.T) {
	svc, _ := newTestService(t)

	// Given: another process holds the rebuild lock
	other := index.NewFileLock(svc.cfg.DataDir)
	require.NoError(t, other.Lock())
	defer other.Unlock()

	// When: rebuilding with a short deadline
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err := svc.RebuildIndex(ctx, false)

	// Then: the rebuild gives up and the snapshot is unchanged
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint64(1), svc.Stats().Snapshot.Generation)
}

func TestService_ConcurrentQueriesDuringRebuild(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 64)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RebuildIndex(ctx, false); err != nil {
				errs <- err
			}
		}()
	}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			query := []string{"Software engineer", "nurse", "wood work", "21234"}[i%4]
			results, err := svc.MatchByTitle(ctx, query, 2)
			if err != nil {
				errs <- err
				return
			}
			if len(results) == 0 {
				errs <- assert.AnError
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, uint64(3), svc.Stats().Snapshot.Generation)
}

func TestService_Shutdown(t *testing.T) {
	svc, _ := newTestService(t)

	require.NoError(t, svc.Shutdown())
	require.NoError(t, svc.Shutdown())

	_, err := svc.MatchByTitle(context.Background(), "Carpenter", 1)
	assert.ErrorIs(t, err, nocerrors.ErrNotReady)

	_, err = svc.RebuildIndex(context.Background(), false)
	assert.ErrorIs(t, err, nocerrors.ErrNotReady)
	assert.False(t, svc.Stats().Ready)
}

func TestService_Stats_RecordsQueries(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _ = svc.MatchByTitle(ctx, "Carpenter", 1)
	_, _ = svc.MatchByTitle(ctx, "Carpenter", 1)
	_, _ = svc.MatchByQuery(ctx, "repair wooden structures", 2)

	q := svc.Stats().Queries
	assert.Equal(t, int64(3), q.TotalQueries)
	assert.Equal(t, int64(1), q.CacheHits)
	assert.Equal(t, int64(2), q.PathCounts["exact"])
	assert.Equal(t, int64(1), q.PathCounts["fused"])
}

func TestNew_RequiresDataDir(t *testing.T) {
	cfg := config.NewConfig()
	cfg.DataDir = ""

	_, err := New(cfg, WithEmbedder(newSwitchableEmbedder()))

	require.Error(t, err)
	assert.Equal(t, nocerrors.ErrCodeConfigInvalid, nocerrors.GetCode(err))
}
