package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRequest = "petadopt/request/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RequestID computes the content-addressed handle of a submitted request.
// The session token and seq make otherwise identical requests distinct, so
// two adoptions of the same pet by the same caller get different handles.
func RequestID(session string, caller Address, req Request, seq int64) (string, error) {
	payload, err := RequestObject(req)
	if err != nil {
		return "", fmt.Errorf("RequestID: %w", err)
	}
	obj := IRObject{
		"session": IRString(session),
		"caller":  IRString(caller.Hex()),
		"request": payload,
		"seq":     IRInt(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RequestID: failed to marshal: %w", err)
	}
	return "0x" + hashWithDomain(DomainRequest, canonical), nil
}
