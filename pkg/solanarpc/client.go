// Package solanarpc wraps solana-go's rpc.Client with retry, timeout, and
// rate limiting, trimmed to the read-only surface the pipeline needs: the
// C8 RPC price-recovery adapter reads account state through it and never
// submits transactions.
package solanarpc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pumpstream/ingest/pkg/config"
	"github.com/pumpstream/ingest/pkg/types"
)

// Client wraps solana-go rpc.Client with retry, timeout, and rate limiting.
type Client struct {
	raw     *solanarpc.Client
	cfg     config.RPCConfig
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient builds a configured Client.
func NewClient(cfg config.RPCConfig) *Client {
	endpoint := cfg.ResolveRPCURL()
	rpcClient := solanarpc.New(endpoint)

	var limiter *rate.Limiter
	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst == 0 {
			burst = int(cfg.RateLimit.RPS * 2)
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)
	}

	log := cfg.Logger
	if log.GetLevel() == zerolog.NoLevel {
		log = zerolog.Nop()
	}

	return &Client{
		raw:     rpcClient,
		cfg:     cfg,
		limiter: limiter,
		log:     log,
	}
}

// Raw exposes the underlying solana-go client for calls this wrapper
// doesn't cover.
func (c *Client) Raw() *solanarpc.Client {
	return c.raw
}

// GetAccountInfo fetches a single account, retried and rate-limited like
// every other call through this client.
func (c *Client) GetAccountInfo(ctx context.Context, addr solana.PublicKey) (*solanarpc.GetAccountInfoResult, error) {
	if err := types.ValidatePublicKey("addr", addr); err != nil {
		return nil, err
	}

	var out *solanarpc.GetAccountInfoResult
	err := c.call(ctx, "getAccountInfo", func(ctx context.Context) error {
		var err error
		out, err = c.raw.GetAccountInfoWithOpts(ctx, addr, &solanarpc.GetAccountInfoOpts{
			Commitment: solanarpc.CommitmentType(c.cfg.Commitment),
		})
		return err
	})
	return out, err
}

// GetMultipleAccounts batches account lookups (used to read pool vault
// token-account balances alongside the pool's own account).
func (c *Client) GetMultipleAccounts(ctx context.Context, addrs ...solana.PublicKey) (*solanarpc.GetMultipleAccountsResult, error) {
	keyed := make(map[string]solana.PublicKey, len(addrs))
	for i, addr := range addrs {
		keyed[fmt.Sprintf("addrs[%d]", i)] = addr
	}
	if err := types.ValidatePublicKeys(keyed); err != nil {
		return nil, err
	}

	var out *solanarpc.GetMultipleAccountsResult
	err := c.call(ctx, "getMultipleAccounts", func(ctx context.Context) error {
		var err error
		out, err = c.raw.GetMultipleAccountsWithOpts(ctx, addrs, &solanarpc.GetMultipleAccountsOpts{
			Commitment: solanarpc.CommitmentType(c.cfg.Commitment),
		})
		return err
	})
	return out, err
}

// GetSlot fetches the current slot. The subscription manager does not call
// it.
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	var out uint64
	err := c.call(ctx, "getSlot", func(ctx context.Context) error {
		var err error
		out, err = c.raw.GetSlot(ctx, solanarpc.CommitmentType(c.cfg.Commitment))
		return err
	})
	return out, err
}

func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx = c.withTimeout(ctx)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if !c.cfg.Retry.Enabled {
		return fn(ctx)
	}

	attempts := c.cfg.Retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		if !retryable(err) || i == attempts-1 {
			break
		}
		backoff := c.backoff(i)
		c.log.Debug().
			Str("op", op).
			Int("attempt", i+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("rpc retry")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, err)
}

func (c *Client) withTimeout(ctx context.Context) context.Context {
	if c.cfg.Timeout <= 0 {
		return ctx
	}
	ctxWithTimeout, _ := context.WithTimeout(ctx, c.cfg.Timeout)
	return ctxWithTimeout
}

// Backoff exposes the retry backoff schedule. Stream reconnects do not use
// it: the subscription manager computes its own doubling delay, without
// jitter.
func (c *Client) Backoff(attempt int) time.Duration {
	return c.backoff(attempt)
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := c.cfg.Retry.InitialBackoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > c.cfg.Retry.MaxBackoff && c.cfg.Retry.MaxBackoff > 0 {
			delay = c.cfg.Retry.MaxBackoff
			break
		}
	}
	if c.cfg.Retry.Jitter {
		jitter := rand.Int63n(int64(delay / 2))
		delay = delay/2 + time.Duration(jitter)
	}
	return delay
}

func retryable(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Conservative: retry on all other errors to keep liveness unless caller decides otherwise.
	return true
}
