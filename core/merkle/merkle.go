// Package merkle computes the 32-byte commitment an organization submits for
// a batch of off-chain disbursement rows. The registry stores the root
// opaquely and never recomputes it.
package merkle

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"io"
)

// Hash is a sha256 digest.
type Hash = [32]byte

// Domain prefixes keep a leaf from ever hashing like an inner node.
const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

// Leaf hashes one row of disbursement data as sha256(0x00 || row).
func Leaf(row []byte) Hash {
	h := sha256.New()
	h.Write([]byte{leafPrefix})
	h.Write(row)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Root computes the Merkle root of a list of leaf hashes. Inner nodes are
// sha256(0x01 || left || right); an unpaired last node is carried up
// unchanged. No leaves yields the zero hash.
func Root(leaves []Hash) Hash {
	if len(leaves) == 0 {
		return Hash{}
	}
	level := append([]Hash(nil), leaves...)
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0]
}

func nextLevel(level []Hash) []Hash {
	next := make([]Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 == len(level) {
			next = append(next, level[i])
			continue
		}
		next = append(next, pair(level[i], level[i+1]))
	}
	return next
}

func pair(a, b Hash) Hash {
	h := sha256.New()
	h.Write([]byte{nodePrefix})
	h.Write(a[:])
	h.Write(b[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// LeavesOfLines reads newline separated rows (e.g. JSONL or CSV without a
// header) and hashes each into a leaf. Blank lines are skipped and trailing
// carriage returns trimmed.
func LeavesOfLines(r io.Reader) ([]Hash, error) {
	var leaves []Hash
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimRight(sc.Bytes(), "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		leaves = append(leaves, Leaf(line))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return leaves, nil
}

// RootOfLines returns the root over the rows of r along with the row count.
func RootOfLines(r io.Reader) (Hash, int, error) {
	leaves, err := LeavesOfLines(r)
	if err != nil {
		return Hash{}, 0, err
	}
	return Root(leaves), len(leaves), nil
}

// Proof is the sibling path from a leaf to the root of a tree of Size leaves.
// Levels where the node is carried up unpaired contribute no sibling.
type Proof struct {
	Index    int    `json:"index"`
	Size     int    `json:"size"`
	Siblings []Hash `json:"siblings"`
}

// BuildProof returns the inclusion proof for leaves[index].
func BuildProof(leaves []Hash, index int) (Proof, bool) {
	if index < 0 || index >= len(leaves) {
		return Proof{}, false
	}
	p := Proof{Index: index, Size: len(leaves)}
	level := append([]Hash(nil), leaves...)
	pos := index
	for len(level) > 1 {
		if sib := pos ^ 1; sib < len(level) {
			p.Siblings = append(p.Siblings, level[sib])
		}
		level = nextLevel(level)
		pos /= 2
	}
	return p, true
}

// Verify checks that leaf at p.Index hashes up to root.
func Verify(root, leaf Hash, p Proof) bool {
	if p.Index < 0 || p.Index >= p.Size {
		return false
	}
	cur := leaf
	pos, width := p.Index, p.Size
	sibs := p.Siblings
	for width > 1 {
		if pos^1 < width {
			if len(sibs) == 0 {
				return false
			}
			if pos%2 == 0 {
				cur = pair(cur, sibs[0])
			} else {
				cur = pair(sibs[0], cur)
			}
			sibs = sibs[1:]
		}
		pos /= 2
		width = (width + 1) / 2
	}
	return len(sibs) == 0 && cur == root
}
