package services

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"strings"

	"golang.org/x/crypto/blake2b"

	"campusclubs/internal/domain"
)

const refMACSize = 16

// CallbackSigner seals the routing reference into the gateway pass-through fields at initiation
// and validates it when the callback comes back.
//
//	opt_a  target id
//	opt_b  requesting user id
//	opt_c  public registrant info (JSON)
//	opt_d  <kind>.<mac>
type CallbackSigner struct {
	key []byte
}

// NewCallbackSigner returns a signer keyed with key. Keys longer than blake2b allows are hashed down.
func NewCallbackSigner(key []byte) *CallbackSigner {
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &CallbackSigner{key: key}
}

func (s *CallbackSigner) mac(kind domain.Kind, targetID, transactionID string) []byte {
	h, err := blake2b.New(refMACSize, s.key)
	if err != nil {
		// Only reachable with an oversized key, which NewCallbackSigner rules out.
		panic(err)
	}
	h.Write([]byte(string(kind) + "|" + targetID + "|" + transactionID))
	return h.Sum(nil)
}

// Seal builds the pass-through fields for a payment request.
func (s *CallbackSigner) Seal(ref domain.CallbackRef, transactionID string, public *domain.PublicInfo) (domain.PassThrough, error) {
	pt := domain.PassThrough{
		OptA: ref.TargetID,
		OptB: ref.UserID,
		OptD: string(ref.Kind) + "." + hex.EncodeToString(s.mac(ref.Kind, ref.TargetID, transactionID)),
	}
	if public != nil {
		raw, err := json.Marshal(public)
		if err != nil {
			return domain.PassThrough{}, err
		}
		pt.OptC = string(raw)
	}
	return pt, nil
}

// Open validates the pass-through fields echoed back for transactionID. It returns nil when the
// reference is missing, malformed or was not produced by this signer.
func (s *CallbackSigner) Open(transactionID string, pt domain.PassThrough) *domain.CallbackRef {
	kindPart, macPart, ok := strings.Cut(strings.TrimSpace(pt.OptD), ".")
	if !ok || transactionID == "" || pt.OptA == "" {
		return nil
	}
	kind, ok := domain.ParseKind(kindPart)
	if !ok {
		return nil
	}
	got, err := hex.DecodeString(macPart)
	if err != nil || len(got) != refMACSize {
		return nil
	}
	if subtle.ConstantTimeCompare(got, s.mac(kind, pt.OptA, transactionID)) != 1 {
		return nil
	}
	return &domain.CallbackRef{Kind: kind, TargetID: pt.OptA, UserID: pt.OptB}
}
