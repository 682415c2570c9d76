package dupes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-worker/internal/hashindex"
)

func TestDistanceAndSimilarity(t *testing.T) {
	const h = uint64(0xdeadbeefcafebabe)
	assert.Equal(t, 0, Distance(h, h))
	assert.Equal(t, 1.0, Similarity(Distance(h, h)))

	assert.Equal(t, 64, Distance(0, ^uint64(0)))
	assert.Equal(t, 0.0, Similarity(64))
	assert.Equal(t, 3, Distance(0b1011, 0))
	assert.InDelta(t, 0.953125, Similarity(3), 1e-9)
}

func TestMaxDistance(t *testing.T) {
	tests := []struct {
		opts Options
		want int
	}{
		{Options{MinSimilarity: 0.90}, 6},
		{Options{MinSimilarity: 1.0}, 0},
		{Options{MinSimilarity: 0.75}, 16},
		{Options{MinSimilarity: 0.9, Threshold: 20}, 6},
		{Options{Threshold: 10}, 10},
		{Options{Threshold: 100}, 64},
		{Options{}, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.opts.MaxDistance(), "%+v", tt.opts)
	}

	assert.Error(t, Options{MinSimilarity: 1.5}.Validate())
	assert.Error(t, Options{Threshold: -1}.Validate())
	assert.NoError(t, Options{MinSimilarity: 0.9}.Validate())
}

func TestIdenticalHashesFormOnePairAndCluster(t *testing.T) {
	report := Find([]Entry{
		{Path: "b.mp4", Hash: 0xffffffffffffffff},
		{Path: "a.mp4", Hash: 0xffffffffffffffff},
	}, Options{MinSimilarity: DefaultMinSimilarity})

	require.Len(t, report.Pairs, 1)
	assert.Equal(t, "a.mp4", report.Pairs[0].A)
	assert.Equal(t, "b.mp4", report.Pairs[0].B)
	assert.GreaterOrEqual(t, report.Pairs[0].Similarity, 0.99)

	require.Len(t, report.Clusters, 1)
	assert.Equal(t, []string{"a.mp4", "b.mp4"}, report.Clusters[0].Members)
	assert.Equal(t, 1.0, report.Clusters[0].MinSimilarity)
}

func TestClusteringIsTransitive(t *testing.T) {
	// A and B differ in 4 bits, B and C in 4 bits, A and C in 8.
	a := uint64(0)
	b := uint64(0x0f)
	c := uint64(0xff)

	report := Find([]Entry{
		{Path: "c.mp4", Hash: c},
		{Path: "a.mp4", Hash: a},
		{Path: "b.mp4", Hash: b},
	}, Options{Threshold: 5})

	require.Len(t, report.Pairs, 2)
	assert.Equal(t, Pair{A: "a.mp4", B: "b.mp4", Distance: 4, Similarity: Similarity(4)}, report.Pairs[0])
	assert.Equal(t, Pair{A: "b.mp4", B: "c.mp4", Distance: 4, Similarity: Similarity(4)}, report.Pairs[1])

	require.Len(t, report.Clusters, 1)
	assert.Equal(t, []string{"a.mp4", "b.mp4", "c.mp4"}, report.Clusters[0].Members)
	assert.Equal(t, Similarity(4), report.Clusters[0].MinSimilarity)
}

func TestSingletonsExcludedAndOrderingStable(t *testing.T) {
	entries := []Entry{
		{Path: "z1.mp4", Hash: 0xaaaa},
		{Path: "z2.mp4", Hash: 0xaaab},
		{Path: "alone.mp4", Hash: 0xffff000000000000},
		{Path: "m1.mp4", Hash: 0x1},
		{Path: "m2.mp4", Hash: 0x1},
	}

	first := Find(entries, Options{Threshold: 2})
	require.Len(t, first.Clusters, 2)
	assert.Equal(t, []string{"m1.mp4", "m2.mp4"}, first.Clusters[0].Members)
	assert.Equal(t, []string{"z1.mp4", "z2.mp4"}, first.Clusters[1].Members)
	assert.Equal(t, 5, first.Files)

	reversed := make([]Entry, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}
	assert.Equal(t, first, Find(reversed, Options{Threshold: 2}))
}

func TestDuplicatePathsCollapse(t *testing.T) {
	report := Find([]Entry{
		{Path: "a.mp4", Hash: 1},
		{Path: "a.mp4", Hash: 1},
	}, Options{Threshold: 0})
	assert.Empty(t, report.Pairs)
	assert.Empty(t, report.Clusters)
	assert.Equal(t, 1, report.Files)
}

func TestPaginate(t *testing.T) {
	clusters := make([]Cluster, 5)
	for i := range clusters {
		clusters[i] = Cluster{Members: []string{string(rune('a' + i))}}
	}

	p := Paginate(clusters, 1, 2)
	assert.Equal(t, 5, p.Total)
	assert.Equal(t, 3, p.TotalPages)
	assert.Len(t, p.Clusters, 2)
	assert.Equal(t, "a", p.Clusters[0].Members[0])

	p = Paginate(clusters, 3, 2)
	require.Len(t, p.Clusters, 1)
	assert.Equal(t, "e", p.Clusters[0].Members[0])

	p = Paginate(clusters, 4, 2)
	assert.Empty(t, p.Clusters)
	assert.NotNil(t, p.Clusters)

	p = Paginate(clusters, 0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 50, p.PageSize)
	assert.Len(t, p.Clusters, 5)

	assert.Equal(t, 0, Paginate(nil, 1, 10).TotalPages)
}

type fakeSource struct {
	entries []hashindex.Entry
	err     error
	scope   string
	rec     bool
}

func (f *fakeSource) List(_ context.Context, scope string, recursive bool) ([]hashindex.Entry, error) {
	f.scope, f.rec = scope, recursive
	return f.entries, f.err
}

func TestScan(t *testing.T) {
	src := &fakeSource{entries: []hashindex.Entry{
		{Path: "s/a.mp4", Hash: 0xffffffffffffffff, Algorithm: hashindex.AlgorithmPHash},
		{Path: "s/b.mp4", Hash: 0xffffffffffffffff, Algorithm: hashindex.AlgorithmPHash},
		{Path: "s/c.mp4", Hash: 0xffffffffffffffff, Algorithm: "legacy"},
	}}

	report, err := Scan(context.Background(), src, "s", true, Options{MinSimilarity: 0.9})
	require.NoError(t, err)
	assert.Equal(t, "s", src.scope)
	assert.True(t, src.rec)
	assert.Equal(t, 2, report.Files)
	require.Len(t, report.Clusters, 1)
	assert.Equal(t, []string{"s/a.mp4", "s/b.mp4"}, report.Clusters[0].Members)
}

func TestScanErrors(t *testing.T) {
	boom := errors.New("disk I/O error")
	_, err := Scan(context.Background(), &fakeSource{err: boom}, "", true, Options{MinSimilarity: 0.9})
	assert.ErrorIs(t, err, boom)

	_, err = Scan(context.Background(), &fakeSource{}, "", true, Options{MinSimilarity: 2})
	assert.Error(t, err)
}
