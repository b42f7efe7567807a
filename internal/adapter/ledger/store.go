// Package ledger is the local substitute for the remote ledger: a JSON
// document of loans keyed by decimal loan id, rewritten atomically after
// every mutation.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"loan-lifecycle-bridge/internal/domain/loan"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const Mode = "local"

// Store is safe for concurrent use within one process. Several processes
// sharing one file are not supported.
type Store struct {
	path   string
	strict bool
	log    *logrus.Entry

	mu     sync.Mutex
	loans  map[string]*loan.Loan
	lastID uint64
}

type Option func(*Store)

// WithStrictDisburse requires a loan to be Funded before it is disbursed.
func WithStrictDisburse(strict bool) Option {
	return func(s *Store) { s.strict = strict }
}

// Open loads the ledger at path, creating it when missing. An unreadable
// document is moved aside and the store starts empty.
func Open(path string, log *logrus.Entry, opts ...Option) (*Store, error) {
	s := &Store{path: path, log: log, loans: map[string]*loan.Loan{}}
	for _, o := range opts {
		o(s)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", loan.ErrPersistenceFailure, err)
	}

	loaded, err := s.load()
	switch {
	case err == nil:
		s.loans = loaded
	case errors.Is(err, fs.ErrNotExist):
		if err := s.persist(); err != nil {
			return nil, err
		}
	default:
		s.log.WithError(err).Error("local ledger unreadable, starting empty")
		s.quarantine()
	}

	for k := range s.loans {
		if n, err := strconv.ParseUint(k, 10, 64); err == nil && n > s.lastID {
			s.lastID = n
		}
	}
	s.log.WithFields(logrus.Fields{"path": path, "loans": len(s.loans), "last_id": s.lastID}).Info("local ledger loaded")
	return s, nil
}

func (s *Store) Mode() string { return Mode }

func (s *Store) load() (map[string]*loan.Loan, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	out := map[string]*loan.Loan{}
	if len(b) == 0 {
		return out, nil
	}
	doc := map[string]*record{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", loan.ErrPersistenceFailure, s.path, err)
	}
	for k, r := range doc {
		if r != nil {
			out[k] = r.loan()
		}
	}
	return out, nil
}

// quarantine keeps a corrupt document for inspection so the next persist does
// not overwrite it.
func (s *Store) quarantine() {
	dst := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, dst); err != nil {
		s.log.WithError(err).Warn("could not move corrupt ledger aside")
		return
	}
	s.log.WithField("moved_to", dst).Warn("corrupt ledger moved aside")
}

// persist writes the whole document to a temp file in the same directory,
// syncs it and renames it over the ledger. Caller holds mu (or is Open).
func (s *Store) persist() error {
	doc := make(map[string]record, len(s.loans))
	for k, l := range s.loans {
		doc[k] = toRecord(l)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", loan.ErrPersistenceFailure, err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", loan.ErrPersistenceFailure, err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write: %v", loan.ErrPersistenceFailure, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync: %v", loan.ErrPersistenceFailure, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close: %v", loan.ErrPersistenceFailure, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: rename: %v", loan.ErrPersistenceFailure, err)
	}
	return nil
}

func key(id uint64) string { return strconv.FormatUint(id, 10) }

// nextID returns the id the next Create will use. Caller holds mu.
func (s *Store) nextID() uint64 { return s.lastID + 1 }

func (s *Store) Create(_ context.Context, t loan.Terms) (loan.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID()
	l := loan.NewPending(id, t)
	s.loans[key(id)] = l
	if err := s.persist(); err != nil {
		delete(s.loans, key(id))
		s.log.WithError(err).WithField("loan_id", id).Error("create not persisted")
		return loan.Receipt{}, err
	}
	s.lastID = id
	s.log.WithField("loan_id", id).Info("local ledger: loan created")
	return loan.Receipt{LoanID: id}, nil
}

// mutate applies fn to a copy of the loan and commits it only when the
// document was persisted.
func (s *Store) mutate(id uint64, op string, fn func(l *loan.Loan) error) (loan.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(id)
	cur, ok := s.loans[k]
	if !ok {
		return loan.Receipt{}, fmt.Errorf("%w: %d", loan.ErrNotFound, id)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return loan.Receipt{}, err
	}
	s.loans[k] = next
	if err := s.persist(); err != nil {
		s.loans[k] = cur
		s.log.WithError(err).WithFields(logrus.Fields{"loan_id": id, "op": op}).Error("mutation not persisted")
		return loan.Receipt{}, err
	}
	s.log.WithFields(logrus.Fields{"loan_id": id, "op": op, "status": next.Status}).Info("local ledger: loan updated")
	return loan.Receipt{LoanID: id}, nil
}

func (s *Store) Fund(_ context.Context, id uint64, amount decimal.Decimal, _ string) (loan.Receipt, error) {
	return s.mutate(id, "fund", func(l *loan.Loan) error {
		l.ApplyFunding(amount)
		return nil
	})
}

func (s *Store) Disburse(_ context.Context, id uint64, _ string) (loan.Receipt, error) {
	return s.mutate(id, "disburse", func(l *loan.Loan) error {
		return l.ApplyDisbursement(s.strict)
	})
}

func (s *Store) Repay(_ context.Context, id uint64, amount decimal.Decimal, _ string) (loan.Receipt, error) {
	return s.mutate(id, "repay", func(l *loan.Loan) error {
		l.ApplyRepayment(amount)
		return nil
	})
}

func (s *Store) Get(_ context.Context, id uint64) (*loan.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[key(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %d", loan.ErrNotFound, id)
	}
	return l.Clone(), nil
}

// ListByBorrower returns ids in ascending order.
func (s *Store) ListByBorrower(_ context.Context, address string) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []uint64{}
	for k, l := range s.loans {
		if !l.BorrowedBy(address) {
			continue
		}
		if n, err := strconv.ParseUint(k, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
