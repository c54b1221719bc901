package fragment

import (
	"encoding/binary"
	"fmt"

	"lukechampine.com/blake3"
)

// Hash is the content address of a Function, BLAKE3 of its structural
// serialization excluding any enclosing NamedFunction.Name (spec.md §3
// "Hash", invariant 1). Two functions with equal structure, however they got
// their name, hash identically.
type Hash [32]byte

func (h Hash) String() string {
	return fmt.Sprintf("%x", [32]byte(h))
}

// IsZero reports whether h is the zero Hash, used as a "not computed yet"
// sentinel while a cluster is still being compiled leaves-first.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// HashFunction computes the structural hash of fn, per spec.md §3 invariant
// 1 and 2: the hash never depends on a recursive call's callee (those are
// encoded as a cluster-local index, not a hash), so hashing is always
// well-defined even for members of a recursive cluster, regardless of the
// order functions in the cluster are hashed.
func HashFunction(fn *Function) Hash {
	h := blake3.New(32, nil)
	writeFunction(h, fn)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

type byteWriter interface {
	Write([]byte) (int, error)
}

func writeFunction(w byteWriter, fn *Function) {
	writeUvarint(w, uint64(len(fn.Branches)))
	for _, br := range fn.Branches {
		writeBranch(w, br)
	}
	writeUvarint(w, uint64(len(fn.Environment)))
	for _, name := range fn.Environment {
		writeString(w, name)
	}
}

func writeBranch(w byteWriter, br Branch) {
	writeUvarint(w, uint64(len(br.Patterns)))
	for _, p := range br.Patterns {
		writePattern(w, p)
	}
	writeUvarint(w, uint64(len(br.Body)))
	for _, f := range br.Body {
		writeFragment(w, f)
	}
}

func writePattern(w byteWriter, p Pattern) {
	if p.IsLiteral {
		w.Write([]byte{1})
		writeInt32(w, p.Value)
		return
	}
	w.Write([]byte{0})
	writeString(w, p.Name)
}

func writeFragment(w byteWriter, f *Fragment) {
	w.Write([]byte{byte(f.Kind)})
	switch f.Kind {
	case Binding:
		writeString(w, f.Name)
		writeUvarint(w, uint64(f.Index))
	case CallToHostFunction:
		w.Write([]byte{f.EffectNumber})
	case CallToIntrinsicFunction:
		w.Write([]byte{byte(f.Intrinsic)})
		writeBool(w, f.IsTail)
	case CallToUserDefinedFunction:
		w.Write(f.CalleeHash[:])
		writeBool(w, f.IsTail)
	case CallToUserDefinedFunctionRecursive:
		writeUvarint(w, uint64(f.ClusterLocalIndex))
		writeBool(w, f.IsTail)
	case Comment:
		// comments do not affect identity: two functions differing only in
		// comment text are the same function. Still write the tag byte above so
		// Kind sequencing is stable, but nothing else.
	case LiteralFunction:
		writeFunction(w, f.Function)
	case LiteralValue:
		writeInt32(w, f.Value)
	case UnresolvedIdentifier:
		writeString(w, f.Name)
		writeBool(w, f.RecursionHint)
	}
	writeBool(w, f.IsTailPosition)
}

func writeBool(w byteWriter, b bool) {
	if b {
		w.Write([]byte{1})
	} else {
		w.Write([]byte{0})
	}
}

func writeInt32(w byteWriter, v int32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	w.Write(buf[:])
}

func writeUvarint(w byteWriter, v uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	w.Write(buf[:n])
}

func writeString(w byteWriter, s string) {
	writeUvarint(w, uint64(len(s)))
	w.Write([]byte(s))
}
