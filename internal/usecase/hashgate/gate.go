// Package hashgate binds loan creation to KYC and explanation records that
// their owning subsystems have already stored.
package hashgate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"loan-lifecycle-bridge/internal/domain/loan"
)

// RecordSet answers whether a hash was recorded by its owning subsystem.
// Hashes are passed in canonical form (see Canonical).
type RecordSet interface {
	Exists(ctx context.Context, hash string) (bool, error)
}

var reHash = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)

// Canonical returns the lowercase 0x-prefixed form of a 32-byte hex hash.
func Canonical(h string) (string, bool) {
	h = strings.TrimSpace(h)
	if !reHash.MatchString(h) {
		return "", false
	}
	return "0x" + strings.ToLower(strings.TrimPrefix(h, "0x")), true
}

type Gate struct {
	kyc          RecordSet
	explanations RecordSet
}

func New(kyc, explanations RecordSet) *Gate {
	return &Gate{kyc: kyc, explanations: explanations}
}

// Require fails with loan.ErrInvalidReference unless both hashes are well
// formed and recorded. Lookup errors are returned unchanged.
func (g *Gate) Require(ctx context.Context, kycHash, explanationHash string) error {
	if err := check(ctx, g.kyc, "kyc_hash", kycHash); err != nil {
		return err
	}
	return check(ctx, g.explanations, "explanation_hash", explanationHash)
}

func check(ctx context.Context, set RecordSet, field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: %s is empty", loan.ErrInvalidReference, field)
	}
	h, ok := Canonical(raw)
	if !ok {
		return fmt.Errorf("%w: %s is not a 32-byte hex hash", loan.ErrInvalidReference, field)
	}
	found, err := set.Exists(ctx, h)
	if err != nil {
		return fmt.Errorf("hashgate: %s lookup: %w", field, err)
	}
	if !found {
		return fmt.Errorf("%w: %s %s is not recorded", loan.ErrInvalidReference, field, h)
	}
	return nil
}
