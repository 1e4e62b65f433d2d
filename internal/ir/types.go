package ir

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Address identifies an external party (registry owner, adopter, signer).
// The zero value is the unset sentinel.
type Address string

// NoAddress is the unset sentinel returned for unadopted entities.
const NoAddress Address = ""

// ZeroAddressHex is how the unset sentinel is rendered on the wire.
const ZeroAddressHex = "0x0000000000000000000000000000000000000000"

// ParseAddress validates and normalises a 20-byte hex address.
// The all-zero address parses to NoAddress.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return NoAddress, fmt.Errorf("address %q: missing 0x prefix", s)
	}
	body := strings.ToLower(s[2:])
	if len(body) != 40 {
		return NoAddress, fmt.Errorf("address %q: want 40 hex digits, got %d", s, len(body))
	}
	if _, err := hex.DecodeString(body); err != nil {
		return NoAddress, fmt.Errorf("address %q: %w", s, err)
	}
	if "0x"+body == ZeroAddressHex {
		return NoAddress, nil
	}
	return Address("0x" + body), nil
}

// MustAddress is ParseAddress for constants and tests. Panics on error.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether a is the unset sentinel.
func (a Address) IsZero() bool {
	return a == NoAddress
}

// Hex renders the address, using the zero address for the unset sentinel.
func (a Address) Hex() string {
	if a.IsZero() {
		return ZeroAddressHex
	}
	return string(a)
}

// EntityID is the dense, monotonically assigned id of a pet.
type EntityID uint64

// ParseEntityID parses a decimal entity id.
// Negative or non-numeric input fails with ENVIRONMENT_REJECTED and the
// reason "value out-of-bounds"; such input never reaches the registry.
func ParseEntityID(s string) (EntityID, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return 0, NewError(ErrCodeEnvironmentRejected, fmt.Sprintf("invalid entity id %q", s), ReasonOutOfBounds)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, NewError(ErrCodeEnvironmentRejected, fmt.Sprintf("invalid entity id %q", s), ReasonOutOfBounds)
	}
	return EntityID(n), nil
}

// EntityIDFromInt converts a signed id coming from an untyped source
// (YAML, JSON). Negative values are rejected as in ParseEntityID.
func EntityIDFromInt(n int64) (EntityID, error) {
	if n < 0 {
		return 0, NewError(ErrCodeEnvironmentRejected, fmt.Sprintf("invalid entity id %d", n), ReasonOutOfBounds)
	}
	return EntityID(n), nil
}

// Status is the terminal status of an executed request.
type Status string

const (
	// StatusSuccess means the request was applied.
	StatusSuccess Status = "success"
	// StatusFailure means the request was accepted but not applied.
	StatusFailure Status = "failure"
)

// Receipt is the environment's terminal report for one request.
type Receipt struct {
	RequestID string      `json:"request_id"`
	Seq       int64       `json:"seq"`
	Caller    Address     `json:"caller"`
	Kind      RequestKind `json:"kind"`
	EntityID  EntityID    `json:"entity_id"` // Created id for add, target id for adopt
	Status    Status      `json:"status"`
	Code      ErrorCode   `json:"code,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Version   uint64      `json:"version"` // Registry version after the request
}

// Succeeded reports whether the receipt indicates success.
func (r Receipt) Succeeded() bool {
	return r.Status == StatusSuccess
}
