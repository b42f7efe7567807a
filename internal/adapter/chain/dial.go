package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"loan-lifecycle-bridge/internal/domain/loan"

	"github.com/sirupsen/logrus"
)

type DialConfig struct {
	RPCURL          string
	ChainID         int64
	PrivateKey      string
	ContractAddress string
	ABIPath         string
	DialTimeout     time.Duration
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
	Locker          Locker
}

// Dial builds an Executor from configuration. Local problems (key, address,
// ABI) are returned as they are; an unreachable node or a chain id other
// than the configured one is loan.ErrBackendUnavailable.
func Dial(ctx context.Context, cfg DialConfig, log *logrus.Entry) (*Executor, error) {
	key, err := ParseKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	contract, err := ParseAddress(cfg.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("chain: contract address: %w", err)
	}
	parsed, err := LoadABI(cfg.ABIPath)
	if err != nil {
		return nil, err
	}

	client, remoteID, err := DialClient(ctx, cfg.RPCURL, cfg.DialTimeout)
	if err != nil {
		return nil, err
	}
	want := big.NewInt(cfg.ChainID)
	if remoteID.Cmp(want) != 0 {
		client.Close()
		return nil, fmt.Errorf("%w: node reports chain id %s, configured %s", loan.ErrBackendUnavailable, remoteID, want)
	}

	ex, err := New(client, Options{
		ChainID:        want,
		Contract:       contract,
		Key:            key,
		ABI:            parsed,
		ConfirmTimeout: cfg.ConfirmTimeout,
		PollInterval:   cfg.PollInterval,
		Locker:         cfg.Locker,
	}, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"rpc":      cfg.RPCURL,
		"chain_id": want.String(),
		"contract": contract.Hex(),
		"account":  ex.Account().Hex(),
	}).Info("remote ledger connected")
	return ex, nil
}
