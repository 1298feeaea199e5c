package ir

import (
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainGenome = "thyxel/genome/v1"
	DomainEvent  = "thyxel/event/v1"
	DomainState  = "thyxel/state/v1"
)

// eventNamespace roots the name-based UUIDs used as event IDs.
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte(DomainEvent))

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) common.Hash {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return common.BytesToHash(h.Sum(nil))
}

// GenomeHash computes the content hash of a genome.
// The same genome always hashes identically, across restarts and replays.
func GenomeHash(g Genome) (common.Hash, error) {
	canonical, err := MarshalCanonical(g.ToIR())
	if err != nil {
		return common.Hash{}, fmt.Errorf("GenomeHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainGenome, canonical), nil
}

// MustGenomeHash is like GenomeHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustGenomeHash(g Genome) common.Hash {
	h, err := GenomeHash(g)
	if err != nil {
		panic(err)
	}
	return h
}

// EventID derives a deterministic name-based UUID for an event.
// Replaying the same command at the same position yields the same ID.
func EventID(kind EventKind, seq, timestamp int64, payload IRObject) (string, error) {
	obj := IRObject{
		"kind":      IRString(kind),
		"seq":       IRInt(seq),
		"timestamp": IRInt(timestamp),
		"payload":   payload,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return uuid.NewSHA1(eventNamespace, canonical).String(), nil
}

// StateDigest hashes an arbitrary state snapshot. Two stores with the same
// digest hold the same ledger state.
func StateDigest(snapshot IRObject) (common.Hash, error) {
	canonical, err := MarshalCanonical(snapshot)
	if err != nil {
		return common.Hash{}, fmt.Errorf("StateDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}
