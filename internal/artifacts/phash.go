package artifacts

import (
	"fmt"
	"image"

	"github.com/corona10/goimagehash"

	"media-worker/internal/harness"
	"media-worker/internal/hashindex"
	"media-worker/internal/media"
)

const (
	phashColumns    = 5
	phashFrames     = phashColumns * phashColumns
	phashFrameWidth = 160
	phashMargin     = 0.05
)

type phashDetail struct {
	Hash      string `json:"hash"`
	Algorithm string `json:"algorithm"`
}

// phash fingerprints a video as the DCT perceptual hash of a 5x5 grid of
// frames spread over its middle 90% and stores it in the hash index.
func (g *Generator) phash(jc *harness.JobContext, rel, src string) (*phashDetail, error) {
	if g.index == nil {
		return nil, fmt.Errorf("%w: %s (no hash index)", ErrUnsupportedKind, KindPhash)
	}
	ctx := jc.Context()

	// Identity is taken before hashing so a file replaced mid-job is not
	// recorded as current.
	id, err := hashindex.ComputeIdentity(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("identity %s: %w", rel, err)
	}
	pr, err := g.requireDuration(ctx, rel, src)
	if err != nil {
		return nil, err
	}

	jc.SetTotal(phashFrames)
	frames := make([]image.Image, 0, phashFrames)
	for i, at := range spread(pr.Duration, phashFrames, phashMargin) {
		if err := jc.Checkpoint(); err != nil {
			return nil, err
		}
		img, err := g.frameAt(ctx, src, at, phashFrameWidth)
		if err != nil {
			return nil, fmt.Errorf("phash frame %d: %w", i, err)
		}
		frames = append(frames, img)
		jc.Add(1)
	}

	b := frames[0].Bounds()
	cellH := max(phashFrameWidth*b.Dy()/max(b.Dx(), 1), 1)
	sheet := media.Grid(frames, phashColumns, phashFrameWidth, cellH)

	h, err := goimagehash.PerceptualHash(sheet)
	if err != nil {
		return nil, fmt.Errorf("perceptual hash: %w", err)
	}
	err = g.index.Put(ctx, hashindex.Entry{
		Path:      rel,
		Hash:      h.GetHash(),
		Algorithm: hashindex.AlgorithmPHash,
		Size:      id.Size,
		ModTime:   id.ModTime,
		Signature: id.Signature,
	})
	if err != nil {
		return nil, err
	}
	return &phashDetail{Hash: fmt.Sprintf("%016x", h.GetHash()), Algorithm: hashindex.AlgorithmPHash}, nil
}
