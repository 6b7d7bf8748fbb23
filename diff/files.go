package diff

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"

	"github.com/brettbedarf/treefs"
)

// DevNull labels the missing side of a unified diff
const DevNull = "/dev/null"

// FileDiff is the content difference of two files.
type FileDiff struct {
	OldContent []byte
	NewContent []byte
	// OldMissing and NewMissing report a side that does not exist
	OldMissing bool
	NewMissing bool
	Patch      string
	Messages   []string
	Warnings   []string
}

// Checksum returns the hex MD5 digest of content, the digest stores publish.
func Checksum(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

// DiffFiles compares the contents of two files, returning nil when they do not differ.
//
// A published checksum on either side is compared first; equal digests end the
// comparison without reading the content of a side that published one. Unequal
// digests are conclusive: both sides are read to build the patch, and a stale
// digest over identical bytes is still reported, with a warning.
// Structured content is then compared semantically and is reported only when
// some value differs; content that cannot be parsed is compared as text with a warning.
func DiffFiles(ctx context.Context, a, b treefs.Node) (*FileDiff, error) {
	fd, _, err := diffFiles(ctx, a, b)
	return fd, err
}

// diffFiles also reports whether either side exists.
func diffFiles(ctx context.Context, a, b treefs.Node) (*FileDiff, bool, error) {
	old, neu := &content{node: a}, &content{node: b}

	same, err := checksumsMatch(ctx, old, neu)
	if err != nil {
		return nil, false, err
	}
	if same {
		return nil, true, nil
	}
	digested := old.sum != "" || neu.sum != ""

	if err := old.load(ctx); err != nil {
		return nil, false, err
	}
	if err := neu.load(ctx); err != nil {
		return nil, false, err
	}

	switch {
	case old.missing && neu.missing:
		return nil, false, nil
	case old.missing:
		return &FileDiff{
			OldMissing: true,
			NewContent: neu.data,
			Patch:      unifiedDiff(DevNull, b.PrintablePath(), nil, neu.data),
		}, true, nil
	case neu.missing:
		return &FileDiff{
			NewMissing: true,
			OldContent: old.data,
			Patch:      unifiedDiff(a.PrintablePath(), DevNull, old.data, nil),
		}, true, nil
	case bytes.Equal(old.data, neu.data):
		if !digested {
			return nil, true, nil
		}
		return &FileDiff{
			OldContent: old.data,
			NewContent: neu.data,
			Warnings:   []string{"checksums differ but the contents are identical"},
		}, true, nil
	}

	fd := &FileDiff{OldContent: old.data, NewContent: neu.data}
	if a.ContentType().Structured() || b.ContentType().Structured() {
		messages, err := compareStructured(a, b, old.data, neu.data)
		if err != nil {
			fd.Warnings = append(fd.Warnings, err.Error())
		} else if len(messages) == 0 {
			return nil, true, nil
		} else {
			fd.Messages = messages
		}
	}
	fd.Patch = unifiedDiff(a.PrintablePath(), b.PrintablePath(), old.data, neu.data)
	return fd, true, nil
}

// SameContent reports whether a and b hold the same bytes, using published
// checksums to avoid reads where possible. When both sides publish a checksum
// neither is read. The returned content of a is non-nil only if it was read.
//
// When b is a [treefs.Canonicalizer], a's content is compared in b's canonical
// form, so content b would store identically counts as the same.
func SameContent(ctx context.Context, a, b treefs.Node) (bool, []byte, error) {
	ac, bc := &content{node: a}, &content{node: b}

	if canon, ok := b.(treefs.Canonicalizer); ok {
		return sameCanonical(ctx, ac, bc, canon)
	}

	if ac.sum, bc.sum = published(ctx, a), published(ctx, b); ac.sum != "" && bc.sum != "" {
		return ac.sum == bc.sum, nil, nil
	}
	same, err := checksumsMatch(ctx, ac, bc)
	if err != nil || same {
		return same, ac.data, err
	}
	if ac.sum != "" || bc.sum != "" {
		// one side published, the other was hashed and differs
		return false, ac.data, nil
	}

	if err := ac.load(ctx); err != nil {
		return false, nil, err
	}
	if err := bc.load(ctx); err != nil {
		return false, ac.data, err
	}
	if ac.missing || bc.missing {
		return ac.missing == bc.missing, ac.data, nil
	}
	return bytes.Equal(ac.data, bc.data), ac.data, nil
}

func sameCanonical(ctx context.Context, a, b *content, canon treefs.Canonicalizer) (bool, []byte, error) {
	if err := a.load(ctx); err != nil {
		return false, nil, err
	}
	if err := b.load(ctx); err != nil {
		return false, a.data, err
	}
	if a.missing || b.missing {
		return a.missing == b.missing, a.data, nil
	}
	want, err := canon.Canonical(a.data)
	if err != nil {
		// rejected content never matches; the write reports the error
		return false, a.data, nil
	}
	return bytes.Equal(want, b.data), a.data, nil
}

// content is one side of a comparison, read at most once.
type content struct {
	node    treefs.Node
	sum     string
	loaded  bool
	data    []byte
	missing bool
}

func (c *content) load(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	data, err := c.node.Read(ctx)
	if err != nil {
		if !treefs.IsNotFound(err) {
			return err
		}
		c.missing = true
	}
	c.data = data
	c.loaded = true
	return nil
}

// checksumsMatch compares digests when at least one side publishes one,
// hashing the content of a side that does not. It never reports a match when
// either side is missing.
func checksumsMatch(ctx context.Context, a, b *content) (bool, error) {
	if a.sum == "" {
		a.sum = published(ctx, a.node)
	}
	if b.sum == "" {
		b.sum = published(ctx, b.node)
	}
	if a.sum == "" && b.sum == "" {
		return false, nil
	}
	for _, side := range []*content{a, b} {
		if side.sum != "" {
			continue
		}
		if err := side.load(ctx); err != nil {
			return false, err
		}
		if side.missing {
			return false, nil
		}
		side.sum = Checksum(side.data)
	}
	return a.sum == b.sum, nil
}

// published returns the digest a node publishes. A failed lookup counts as no digest;
// the read that follows reports the real problem.
func published(ctx context.Context, n treefs.Node) string {
	sum, err := treefs.ChecksumOf(ctx, n)
	if err != nil {
		return ""
	}
	return sum
}
