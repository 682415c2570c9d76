package hashindex

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/zeebo/blake3"

	"media-worker/internal/filesystem"
)

// sampleSize is how much of the head and the tail of a file feeds the signature.
const sampleSize = 64 * 1024

// Identity captures enough about a file to notice it changed without hashing
// the whole thing.
type Identity struct {
	Size      int64
	ModTime   time.Time
	Signature string
}

// Same reports whether two identities describe the same content.
func (id Identity) Same(other Identity) bool {
	return id.Size == other.Size &&
		id.ModTime.Equal(other.ModTime) &&
		id.Signature == other.Signature
}

// ComputeIdentity stats path and digests its size and head/tail samples with
// BLAKE3.
func ComputeIdentity(ctx context.Context, path string) (Identity, error) {
	cfg := filesystem.DefaultRetryConfig()
	info, err := filesystem.StatWithRetry(ctx, path, cfg)
	if err != nil {
		return Identity{}, err
	}
	if info.IsDir() {
		return Identity{}, fmt.Errorf("%s is a directory", path)
	}

	f, err := filesystem.OpenWithRetry(ctx, path, cfg)
	if err != nil {
		return Identity{}, err
	}
	defer func() { _ = f.Close() }()

	h := blake3.New()
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(info.Size()))
	_, _ = h.Write(sizeBuf[:])

	if _, err := io.CopyN(h, f, sampleSize); err != nil && err != io.EOF {
		return Identity{}, fmt.Errorf("read head of %s: %w", path, err)
	}
	if info.Size() > 2*sampleSize {
		if _, err := f.Seek(-sampleSize, io.SeekEnd); err != nil {
			return Identity{}, fmt.Errorf("seek tail of %s: %w", path, err)
		}
		if _, err := io.CopyN(h, f, sampleSize); err != nil && err != io.EOF {
			return Identity{}, fmt.Errorf("read tail of %s: %w", path, err)
		}
	}

	return Identity{
		Size:      info.Size(),
		ModTime:   info.ModTime().Truncate(time.Second),
		Signature: hex.EncodeToString(h.Sum(nil)),
	}, nil
}
