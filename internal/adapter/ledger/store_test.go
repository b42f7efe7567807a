package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"loan-lifecycle-bridge/internal/domain/loan"
	"loan-lifecycle-bridge/internal/infrastructure/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	kh = "0x" + strings.Repeat("ab", 32)
	eh = "0x" + strings.Repeat("cd", 32)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func terms(principal, borrower string) loan.Terms {
	return loan.Terms{
		Principal:            d(principal),
		TermDays:             90,
		InterestRate:         1000,
		KYCHash:              kh,
		ExplanationHash:      eh,
		RiskCategory:         loan.RiskLow,
		ProbabilityOfDefault: 250,
		Borrower:             borrower,
	}
}

func openStore(t *testing.T, path string, opts ...Option) *Store {
	t.Helper()
	s, err := Open(path, logging.Module(logging.Discard(), "ledger"), opts...)
	require.NoError(t, err)
	return s
}

func TestScenario_CreateFundRepay(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "loans.json"))

	rc, err := s.Create(ctx, terms("1.0", "0xBorrower"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rc.LoanID)
	assert.Empty(t, rc.TxRef)

	l, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusPending, l.Status)
	assert.True(t, l.TotalRepayment.Equal(d("1.02465753")), "total_repayment = %s", l.TotalRepayment)

	_, err = s.Fund(ctx, 1, d("1.0"), "0xLender")
	require.NoError(t, err)
	l, _ = s.Get(ctx, 1)
	assert.Equal(t, loan.StatusFunded, l.Status)

	_, err = s.Repay(ctx, 1, d("1.2466"), "0xBorrower")
	require.NoError(t, err)
	l, _ = s.Get(ctx, 1)
	assert.Equal(t, loan.StatusRepaid, l.Status)
	assert.True(t, l.TotalRepayment.Equal(d("1.02465753")), "total_repayment must not be recomputed")
}

func TestConcurrentFunding_NoLostUpdate(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "loans.json"))
	_, err := s.Create(ctx, terms("1.0", "0xb"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Fund(ctx, 1, d("0.6"), "0xlender")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	l, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, l.FundedAmount.Equal(d("1.2")), "funded = %s", l.FundedAmount)
	assert.Equal(t, loan.StatusFunded, l.Status)
}

func TestManyConcurrentRepayments(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "loans.json"))
	_, err := s.Create(ctx, terms("10", "0xb"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Repay(ctx, 1, d("0.01"), "0xb")
		}()
	}
	wg.Wait()

	l, _ := s.Get(ctx, 1)
	assert.True(t, l.AmountRepaid.Equal(d("0.5")), "repaid = %s", l.AmountRepaid)
	assert.Equal(t, loan.StatusPending, l.Status)
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "loans.json"))

	_, err := s.Get(ctx, 42)
	assert.ErrorIs(t, err, loan.ErrNotFound)
	_, err = s.Fund(ctx, 42, d("1"), "0xl")
	assert.ErrorIs(t, err, loan.ErrNotFound)
	_, err = s.Disburse(ctx, 42, "0xb")
	assert.ErrorIs(t, err, loan.ErrNotFound)
	_, err = s.Repay(ctx, 42, d("1"), "0xb")
	assert.ErrorIs(t, err, loan.ErrNotFound)
}

func TestDisburse_PermissiveAndStrict(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	loose := openStore(t, filepath.Join(dir, "loose.json"))
	_, _ = loose.Create(ctx, terms("1", "0xb"))
	_, err := loose.Disburse(ctx, 1, "0xb")
	require.NoError(t, err)
	l, _ := loose.Get(ctx, 1)
	assert.Equal(t, loan.StatusDisbursed, l.Status)

	strict := openStore(t, filepath.Join(dir, "strict.json"), WithStrictDisburse(true))
	_, _ = strict.Create(ctx, terms("1", "0xb"))
	_, err = strict.Disburse(ctx, 1, "0xb")
	assert.ErrorIs(t, err, loan.ErrInvalidTransition)
	l, _ = strict.Get(ctx, 1)
	assert.Equal(t, loan.StatusPending, l.Status, "rejected transition must not change state")

	_, _ = strict.Fund(ctx, 1, d("1"), "0xl")
	_, err = strict.Disburse(ctx, 1, "0xb")
	require.NoError(t, err)
}

func TestReload_PersistsAndSeedsCounter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "loans.json")

	s := openStore(t, path)
	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, terms("2", "0xAbC"))
		require.NoError(t, err)
	}
	_, err := s.Fund(ctx, 2, d("0.5"), "0xl")
	require.NoError(t, err)

	reopened := openStore(t, path)
	l, err := reopened.Get(ctx, 2)
	require.NoError(t, err)
	assert.True(t, l.FundedAmount.Equal(d("0.5")))
	assert.Equal(t, loan.RiskLow, l.RiskCategory)

	rc, err := reopened.Create(ctx, terms("1", "0xother"))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), rc.LoanID)
}

func TestPersistedForm(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "loans.json")
	s := openStore(t, path)
	_, _ = s.Create(ctx, terms("1.5", "0xb"))
	_, _ = s.Fund(ctx, 1, d("0.25"), "0xl")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	entry, ok := doc["1"]
	require.True(t, ok, "document must be keyed by decimal id: %s", raw)
	assert.Equal(t, "1.5", string(entry["principal"]))
	assert.Equal(t, "0.25", string(entry["funded_amount"]))
	assert.Equal(t, "0", string(entry["amount_repaid"]))
	assert.Equal(t, `"Pending"`, string(entry["status"]))

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".loans.json.*.tmp"))
	assert.Empty(t, matches, "temp files must not linger")
}

func TestListByBorrower_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "loans.json"))
	_, _ = s.Create(ctx, terms("1", "0xAAAA"))
	_, _ = s.Create(ctx, terms("1", "0xbbbb"))
	_, _ = s.Create(ctx, terms("1", "0xaaaa"))

	ids, err := s.ListByBorrower(ctx, "0xAaAa")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, ids)

	ids, err = s.ListByBorrower(ctx, "0xnobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestOpen_CorruptFileStartsEmptyAndIsKept(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loans.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"1": {"loan_id": 1,`), 0o644))

	s := openStore(t, path)
	_, err := s.Get(context.Background(), 1)
	assert.ErrorIs(t, err, loan.ErrNotFound)

	kept, _ := filepath.Glob(path + ".corrupt-*")
	assert.Len(t, kept, 1)

	rc, err := s.Create(context.Background(), terms("1", "0xb"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rc.LoanID)
}

func TestPersistFailure_RollsBack(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "loans.json")
	s := openStore(t, path)
	_, err := s.Create(ctx, terms("1", "0xb"))
	require.NoError(t, err)

	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	_, err = s.Fund(ctx, 1, d("1"), "0xl")
	assert.True(t, errors.Is(err, loan.ErrPersistenceFailure), "err = %v", err)
	l, _ := s.Get(ctx, 1)
	assert.True(t, l.FundedAmount.IsZero(), "failed mutation must not be visible")
	assert.Equal(t, loan.StatusPending, l.Status)

	_, err = s.Create(ctx, terms("1", "0xb"))
	assert.ErrorIs(t, err, loan.ErrPersistenceFailure)
	require.NoError(t, os.Chmod(dir, 0o755))
	rc, err := s.Create(ctx, terms("1", "0xb"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rc.LoanID, "failed create must not consume an id")
}

func TestGet_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "loans.json"))
	_, _ = s.Create(ctx, terms("1", "0xb"))

	l, _ := s.Get(ctx, 1)
	l.Status = loan.StatusRepaid
	again, _ := s.Get(ctx, 1)
	assert.Equal(t, loan.StatusPending, again.Status)
}

func TestPersist_LeavesDecimalEncodingAlone(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "loans.json"))
	_, err := s.Create(ctx, terms("1.5", "0xb"))
	require.NoError(t, err)

	b, err := json.Marshal(d("1.5"))
	require.NoError(t, err)
	assert.Equal(t, `"1.5"`, string(b), "decimals outside the ledger keep their default encoding")
}

func TestLoad_AcceptsQuotedAmounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loans.json")
	doc := `{"2":{"loan_id":2,"borrower":"0xb","principal":"1.5","interest_rate":1000,"term_days":90,` +
		`"total_repayment":"1.53698630","funded_amount":"0.5","amount_repaid":0,"status":"Pending",` +
		`"kyc_hash":"` + kh + `","explanation_hash":"` + eh + `","probability_of_default":0}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s := openStore(t, path)
	l, err := s.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, l.Principal.Equal(d("1.5")))
	assert.True(t, l.FundedAmount.Equal(d("0.5")))
	assert.Equal(t, loan.StatusPending, l.Status)
}
