package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"loan-lifecycle-bridge/internal/domain/loan"

	"github.com/bsm/redislock"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
)

// Client is the JSON-RPC surface the executor needs. *ethclient.Client
// satisfies it.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

var _ Client = (*ethclient.Client)(nil)

// DialClient connects to rpcURL and checks that it answers eth_chainId
// within timeout. Any failure is loan.ErrBackendUnavailable.
func DialClient(ctx context.Context, rpcURL string, timeout time.Duration) (*ethclient.Client, *big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: dial %s: %v", loan.ErrBackendUnavailable, rpcURL, err)
	}
	id, err := c.ChainID(ctx)
	if err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("%w: eth_chainId on %s: %v", loan.ErrBackendUnavailable, rpcURL, err)
	}
	return c, id, nil
}

// Locker serialises nonce assignment for one signing account across
// processes. Lock must not retry; a held lock is an error.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// RedisLocker implements Locker with redislock.
type RedisLocker struct {
	c   *redislock.Client
	ttl time.Duration
}

// NewRedisLocker returns a locker whose locks expire after ttl when the
// holder dies before releasing.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{c: redislock.New(rdb), ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := l.c.Obtain(ctx, key, l.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("nonce lock %s held by another process: %w", key, err)
		}
		return nil, fmt.Errorf("nonce lock %s: %w", key, err)
	}
	return func() {
		// release on a fresh context; the caller's may already be done
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = lock.Release(rctx)
	}, nil
}
