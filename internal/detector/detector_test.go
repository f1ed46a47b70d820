package detector

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/infrastructure/storage"
)

func doc(source, ref, title, body string) domain.RegulatoryDocument {
	d := domain.RegulatoryDocument{
		SourceID:    source,
		ExternalRef: ref,
		Title:       title,
		BodyText:    body,
		FetchedAt:   time.Now().UTC(),
	}
	d.ContentHash = domain.ContentHashOf(d.SourceID, d.RefOrTitle(), d.BodyText)
	d.Fingerprint = domain.FingerprintOf(d.Title, d.BodyText)
	return d
}

func TestDetectNewThenUnchanged(t *testing.T) {
	ctx := context.Background()
	det := New(storage.NewMemoryHistory(), Config{}, nil)

	d := doc("fda", "R-1", "Recall", "Lot 4 recalled.")
	rec, err := det.Detect(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, rec.Status)
	assert.Equal(t, 1, rec.Revision)

	again := d
	again.FetchedAt = d.FetchedAt.Add(24 * time.Hour)
	rec, err = det.Detect(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnchanged, rec.Status)
}

func TestDetectUpdatedLinksPredecessor(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryHistory()
	det := New(store, Config{SimilarityThreshold: 0.8}, nil)

	v1 := doc("fda", "G-12", "Guidance", "Sponsors should submit annual reports. Reports are due in March.")
	v2 := doc("fda", "G-12", "Guidance", "Sponsors should submit annual reports. Reports are due in April.")

	_, err := det.Detect(ctx, v1)
	require.NoError(t, err)

	rec, err := det.Detect(ctx, v2)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUpdated, rec.Status)
	assert.Equal(t, v1.ContentHash, rec.PredecessorHash)
	assert.Equal(t, 2, rec.Revision)
	assert.Equal(t, []string{"body"}, rec.FieldsChanged)
	assert.Contains(t, rec.DiffSummary, domain.DiffMinorEdit)
	assert.Greater(t, rec.Similarity, 0.8)
	assert.Contains(t, rec.DiffExcerpt, "-Reports are due in March.")
	assert.Contains(t, rec.DiffExcerpt, "+Reports are due in April.")

	latest, found, err := store.Get(ctx, v2.Key())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, v2.ContentHash, latest.ContentHash)
}

func TestDetectFullTextRewrite(t *testing.T) {
	ctx := context.Background()
	det := New(storage.NewMemoryHistory(), Config{}, nil)

	_, err := det.Detect(ctx, doc("ema", "", "Shortage notice", "Supply of product A is constrained until June."))
	require.NoError(t, err)

	rec, err := det.Detect(ctx, doc("ema", "", "Shortage notice", "The marketing authorisation holder has withdrawn the medicine from all markets."))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUpdated, rec.Status)
	assert.Contains(t, rec.DiffSummary, domain.DiffFullText)
}

func TestDetectCrossSourceDuplicate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryHistory()
	det := New(store, Config{}, nil)

	body := "Company Z announces a voluntary nationwide recall of lot 55."
	first, err := det.Detect(ctx, doc("fda-press", "press-55", "Company Z recall", body))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, first.Status)

	second, err := det.Detect(ctx, doc("fda-recalls", "recall-55", "Company Z Recall", body))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDuplicate, second.Status)
	assert.Equal(t, "fda-press|press-55", second.DuplicateOf)

	// The duplicate is stored under its own key and is unchanged on the next run.
	third, err := det.Detect(ctx, doc("fda-recalls", "recall-55", "Company Z Recall", body))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnchanged, third.Status)
}

func TestRevisionChainTerminates(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryHistory()
	det := New(store, Config{}, nil)

	// A -> B -> A must still yield a strictly increasing chain.
	bodies := []string{"Version A text.", "Version B text.", "Version A text."}
	for _, b := range bodies {
		_, err := det.Detect(ctx, doc("fda", "loop", "Loop", b))
		require.NoError(t, err)
	}

	revs, err := store.Revisions(ctx, domain.HistoryKey{SourceID: "fda", Ref: "loop"})
	require.NoError(t, err)
	require.Len(t, revs, 3)

	visited := map[int]bool{}
	for i, rev := range revs {
		require.False(t, visited[rev.Revision], "revision numbers repeat")
		visited[rev.Revision] = true
		if i > 0 {
			assert.Equal(t, revs[i-1].ContentHash, rev.PredecessorHash)
			assert.Greater(t, rev.Revision, revs[i-1].Revision)
		}
	}
	assert.Empty(t, revs[0].PredecessorHash)
}

func TestConcurrentDetectSingleWinner(t *testing.T) {
	ctx := context.Background()
	det := New(storage.NewMemoryHistory(), Config{LockStripes: 4}, nil)
	d := doc("fda", "race", "Race", "Same content everywhere.")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[domain.ChangeStatus]int{}
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := det.Detect(ctx, d)
			assert.NoError(t, err)
			mu.Lock()
			statuses[rec.Status]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, statuses[domain.StatusNew])
	assert.Equal(t, 15, statuses[domain.StatusUnchanged])
}

// conflictingStore loses every compare-and-set, simulating another process
// that keeps winning the race.
type conflictingStore struct {
	*storage.MemoryHistory
	attempts int
}

func (c *conflictingStore) CompareAndSet(context.Context, domain.HistoryKey, string, domain.HistoryEntry) (bool, error) {
	c.attempts++
	return false, nil
}

func TestDetectRetriesOnceThenUnchanged(t *testing.T) {
	store := &conflictingStore{MemoryHistory: storage.NewMemoryHistory()}
	det := New(store, Config{}, nil)

	rec, err := det.Detect(context.Background(), doc("fda", "x", "X", "Body."))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnchanged, rec.Status)
	assert.Equal(t, 2, store.attempts)
}

func TestSentencesSplit(t *testing.T) {
	got := sentences("One. Two! Three? tail")
	assert.Equal(t, []string{"One.\n", "Two!\n", "Three?\n", "tail\n"}, got)
}

func TestExcerptIsBounded(t *testing.T) {
	prev := strings.Repeat("Same sentence. ", 5) + strings.Repeat("Old line. ", 50)
	next := strings.Repeat("Same sentence. ", 5) + strings.Repeat("New line. ", 50)
	out := excerpt(prev, next, 10)
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 11)
	assert.Equal(t, "...", lines[10])
}

// slowFingerprintStore widens the window between the fingerprint lookup
// and the write, as a networked store would.
type slowFingerprintStore struct {
	*storage.MemoryHistory
}

func (s slowFingerprintStore) FindByFingerprint(ctx context.Context, fp string) (domain.HistoryEntry, bool, error) {
	time.Sleep(5 * time.Millisecond)
	return s.MemoryHistory.FindByFingerprint(ctx, fp)
}

func TestConcurrentMirrorsYieldOneNew(t *testing.T) {
	ctx := context.Background()
	det := New(slowFingerprintStore{storage.NewMemoryHistory()}, Config{}, nil)

	body := "Company Q recalls all lots of product Q after sterility failures."
	sources := []string{"fda", "ema", "mhra", "tga"}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[domain.ChangeStatus]int{}
	)
	for _, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := det.Detect(ctx, doc(src, src+"-1", "Product Q recall", body))
			assert.NoError(t, err)
			mu.Lock()
			statuses[rec.Status]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, statuses[domain.StatusNew])
	assert.Equal(t, len(sources)-1, statuses[domain.StatusDuplicate])
}

func TestRecordedRebuildsStoredChange(t *testing.T) {
	ctx := context.Background()
	det := New(storage.NewMemoryHistory(), Config{}, nil)

	a := doc("fda", "loop", "Loop", "Sponsors report annually. Reports are due in March.")
	b := doc("fda", "loop", "Loop", "Sponsors report annually. Reports are due in April.")

	_, err := det.Detect(ctx, a)
	require.NoError(t, err)

	rec, ok, err := det.Recorded(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.ChangeRecord{Status: domain.StatusNew, Revision: 1}, rec)

	_, err = det.Detect(ctx, b)
	require.NoError(t, err)
	reverted, err := det.Detect(ctx, a)
	require.NoError(t, err)
	require.Equal(t, domain.StatusUpdated, reverted.Status)

	rec, ok, err = det.Recorded(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusUpdated, rec.Status)
	assert.Equal(t, 3, rec.Revision)
	assert.Equal(t, b.ContentHash, rec.PredecessorHash)
	assert.Equal(t, reverted.DiffSummary, rec.DiffSummary)
	assert.Contains(t, rec.DiffExcerpt, "-Reports are due in April.")

	// b is no longer the latest revision
	_, ok, err = det.Recorded(ctx, b)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordedSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	det := New(storage.NewMemoryHistory(), Config{}, nil)

	body := "Identical notice text published twice."
	_, err := det.Detect(ctx, doc("fda", "n-1", "Notice", body))
	require.NoError(t, err)
	mirror := doc("ema", "n-9", "Notice", body)
	rec, err := det.Detect(ctx, mirror)
	require.NoError(t, err)
	require.Equal(t, domain.StatusDuplicate, rec.Status)

	_, ok, err := det.Recorded(ctx, mirror)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = det.Recorded(ctx, doc("who", "w-1", "Unknown", "Never seen."))
	require.NoError(t, err)
	assert.False(t, ok)
}
