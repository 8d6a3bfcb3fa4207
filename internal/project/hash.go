package project

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"callgen/internal/types"
)

// Digest is a SHA-256 fingerprint.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Combine hashes content followed by deps in order.
func Combine(content Digest, deps ...Digest) Digest {
	h := sha256.New()
	_, _ = h.Write(content[:])
	for _, d := range deps {
		_, _ = h.Write(d[:])
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// Fingerprint identifies the expansion of fn: the target, every nominal
// declaration and the printed function type.
func (p *Program) Fingerprint(fn types.TypeID) Digest {
	return Combine(p.environment(), sha256.Sum256([]byte(p.Types.TypeString(fn))))
}

func (p *Program) environment() Digest {
	var sb strings.Builder
	t := p.Target
	fmt.Fprintf(&sb, "%s|%d|%d|%t\n", t.Triple, t.MaxScalarsForDirectResult, t.MaxScalarsForDirectParam, t.DedicatedErrorRegister)
	cfg := p.Manifest.Config
	for _, group := range [][]NominalConfig{cfg.Structs, cfg.Classes, cfg.Unions} {
		for _, n := range group {
			fmt.Fprintf(&sb, "%s %t {%s}\n", n.Name, n.AddressOnly, strings.Join(n.Fields, "; "))
		}
		sb.WriteString("--\n")
	}
	return sha256.Sum256([]byte(sb.String()))
}
