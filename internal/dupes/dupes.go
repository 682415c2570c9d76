package dupes

import (
	"fmt"
	"math"
	"math/bits"
	"sort"
)

// HashBits is the width of the fingerprints being compared.
const HashBits = 64

// DefaultMinSimilarity matches files differing in at most 6 of 64 bits.
const DefaultMinSimilarity = 0.90

// Entry is one file's fingerprint.
type Entry struct {
	Path string
	Hash uint64
}

// Pair is two similar files, A < B.
type Pair struct {
	A          string  `json:"a"`
	B          string  `json:"b"`
	Distance   int     `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// Cluster is a connected component of similar files.
type Cluster struct {
	Members []string `json:"members"`
	// MinSimilarity is the weakest direct link inside the cluster.
	MinSimilarity float64 `json:"min_similarity"`
}

// Report holds the similar pairs and their transitive clusters.
type Report struct {
	Pairs    []Pair    `json:"pairs"`
	Clusters []Cluster `json:"clusters"`
	Files    int       `json:"files"`
}

// Options selects how close two hashes must be. MinSimilarity wins when set;
// otherwise Threshold is the maximum Hamming distance.
type Options struct {
	MinSimilarity float64
	Threshold     int
}

// MaxDistance returns the largest distance still considered similar.
func (o Options) MaxDistance() int {
	if o.MinSimilarity > 0 {
		d := int(math.Floor((1-o.MinSimilarity)*HashBits + 1e-9))
		return min(max(d, 0), HashBits)
	}
	return min(max(o.Threshold, 0), HashBits)
}

// Validate rejects similarities outside (0, 1] and negative thresholds.
func (o Options) Validate() error {
	if o.MinSimilarity < 0 || o.MinSimilarity > 1 {
		return fmt.Errorf("min similarity %v outside [0, 1]", o.MinSimilarity)
	}
	if o.Threshold < 0 {
		return fmt.Errorf("threshold %d is negative", o.Threshold)
	}
	return nil
}

// Distance is the Hamming distance between two hashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similarity maps a distance to [0, 1], where 1 is identical.
func Similarity(distance int) float64 {
	return 1 - float64(distance)/HashBits
}

// Find compares every pair of entries and groups similar files. Entries with
// the same path are collapsed to the last one given. Output is deterministic:
// pairs ordered by (A, B), members sorted, clusters ordered by first member.
func Find(entries []Entry, opts Options) Report {
	byPath := make(map[string]uint64, len(entries))
	for _, e := range entries {
		byPath[e.Path] = e.Hash
	}
	files := make([]Entry, 0, len(byPath))
	for p, h := range byPath {
		files = append(files, Entry{Path: p, Hash: h})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	maxDist := opts.MaxDistance()
	uf := newUnionFind(len(files))
	weakest := make(map[int]int)

	var pairs []Pair
	for i := range files {
		for j := i + 1; j < len(files); j++ {
			d := Distance(files[i].Hash, files[j].Hash)
			if d > maxDist {
				continue
			}
			pairs = append(pairs, Pair{
				A:          files[i].Path,
				B:          files[j].Path,
				Distance:   d,
				Similarity: Similarity(d),
			})
			uf.union(i, j)
			weakest[i] = max(weakest[i], d)
		}
	}

	groups := make(map[int][]int)
	for i := range files {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	clusters := make([]Cluster, 0, len(groups))
	for _, idx := range groups {
		if len(idx) < 2 {
			continue
		}
		c := Cluster{Members: make([]string, len(idx)), MinSimilarity: 1}
		worst := 0
		for k, i := range idx {
			c.Members[k] = files[i].Path
			worst = max(worst, weakest[i])
		}
		sort.Strings(c.Members)
		c.MinSimilarity = Similarity(worst)
		clusters = append(clusters, c)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Members[0] < clusters[j].Members[0] })

	return Report{Pairs: pairs, Clusters: clusters, Files: len(files)}
}

// Page is one page of clusters.
type Page struct {
	Clusters   []Cluster `json:"clusters"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	Total      int       `json:"total"`
	TotalPages int       `json:"total_pages"`
}

// Paginate returns the 1-based page of clusters. Pages past the end are empty.
func Paginate(clusters []Cluster, page, size int) Page {
	if size <= 0 {
		size = 50
	}
	if page <= 0 {
		page = 1
	}
	total := len(clusters)
	p := Page{
		Clusters:   []Cluster{},
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: (total + size - 1) / size,
	}
	start := (page - 1) * size
	if start >= total {
		return p
	}
	end := min(start+size, total)
	p.Clusters = clusters[start:end]
	return p
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
