// Package backend picks the loan substrate once at startup.
package backend

import (
	"context"
	"time"

	"loan-lifecycle-bridge/internal/adapter/chain"
	"loan-lifecycle-bridge/internal/adapter/ledger"
	"loan-lifecycle-bridge/internal/config"
	"loan-lifecycle-bridge/internal/domain/loan"
	"loan-lifecycle-bridge/internal/infrastructure/logging"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NonceLockTTL bounds how long a crashed holder can block other processes.
const NonceLockTTL = 30 * time.Second

// Select returns the remote ledger when a contract and key are configured
// and the node is reachable, and the local ledger otherwise. rdb may be nil.
// Only a local ledger that cannot be opened is an error.
func Select(ctx context.Context, cfg *config.Config, rdb *redis.Client, log *logrus.Logger) (loan.Backend, error) {
	if cfg.ChainConfigured() {
		dc := chain.DialConfig{
			RPCURL:          cfg.RPCURL,
			ChainID:         cfg.ChainID,
			PrivateKey:      cfg.PrivateKey,
			ContractAddress: cfg.ContractAddress,
			ABIPath:         cfg.ContractABIPath,
			DialTimeout:     cfg.DialTimeout,
			ConfirmTimeout:  cfg.ConfirmTimeout,
			PollInterval:    cfg.ReceiptPoll,
		}
		if cfg.NonceLockRedis && rdb != nil {
			dc.Locker = chain.NewRedisLocker(rdb, NonceLockTTL)
		}
		ex, err := chain.Dial(ctx, dc, logging.Module(log, "chain"))
		if err == nil {
			return ex, nil
		}
		log.WithError(err).WithField("rpc", cfg.RPCURL).Warn("remote ledger not usable, falling back to local ledger")
	} else {
		log.Info("no contract address or signing key configured, using local ledger")
	}

	st, err := ledger.Open(cfg.LedgerFile, logging.Module(log, "ledger"), ledger.WithStrictDisburse(cfg.StrictDisburse))
	if err != nil {
		return nil, err
	}
	return st, nil
}
