package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const tokenAccountSize = 165

// Holder is one wallet's aggregated position in the tracked token.
type Holder struct {
	Address            string
	Balance            decimal.Decimal
	Decimals           uint8
	PercentageOfSupply decimal.Decimal
}

// HolderSet is the result of a single point-in-time holder query. The claim
// cycle snapshots from exactly one HolderSet per claim.
type HolderSet struct {
	Holders     []Holder
	TotalSupply decimal.Decimal
	Decimals    uint8
}

// QueryService is the read-only chain interface consumed by the claim cycle.
type QueryService interface {
	GetHolders(ctx context.Context, mint string) (HolderSet, error)
}

// Options parameterise the on-chain holder query client.
type Options struct {
	RPCURL       string
	Commitment   string
	Timeout      time.Duration
	RateLimitRPS float64
}

// Client queries holder balances and supply via Solana JSON-RPC.
type Client struct {
	opts      Options
	logger    zerolog.Logger
	limiter   *rate.Limiter
	client    *rpc.Client
	clientMux sync.Mutex
}

// NewClient builds a new ledger query client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	rps := opts.RateLimitRPS
	if rps <= 0 {
		rps = 4
	}
	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "ledger").Logger(),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// GetHolders returns every wallet holding a nonzero balance of the mint,
// with per-holder supply percentages, from one supply call plus one token
// account scan.
func (c *Client) GetHolders(ctx context.Context, mint string) (HolderSet, error) {
	if c.opts.RPCURL == "" {
		return HolderSet{}, errors.New("solana rpc url not configured")
	}
	if mint == "" {
		return HolderSet{}, errors.New("token mint address not configured")
	}

	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return HolderSet{}, fmt.Errorf("parse mint address: %w", err)
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client := c.getClient()
	commitment := commitmentFromString(c.opts.Commitment)

	if err := c.limiter.Wait(ctx); err != nil {
		return HolderSet{}, err
	}
	supplyRes, err := client.GetTokenSupply(ctx, mintKey, commitment)
	if err != nil {
		return HolderSet{}, fmt.Errorf("get token supply: %w", err)
	}
	if supplyRes == nil || supplyRes.Value == nil {
		return HolderSet{}, errors.New("empty token supply response")
	}
	totalSupply, err := decimal.NewFromString(supplyRes.Value.Amount)
	if err != nil {
		return HolderSet{}, fmt.Errorf("parse token supply: %w", err)
	}
	decimals := supplyRes.Value.Decimals

	if err := c.limiter.Wait(ctx); err != nil {
		return HolderSet{}, err
	}
	accounts, err := client.GetProgramAccountsWithOpts(ctx, solana.TokenProgramID, &rpc.GetProgramAccountsOpts{
		Commitment: commitment,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{DataSize: tokenAccountSize},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(mintKey.Bytes())}},
		},
	})
	if err != nil {
		return HolderSet{}, fmt.Errorf("get token accounts: %w", err)
	}

	// A wallet may own several token accounts for the same mint.
	balances := make(map[string]decimal.Decimal, len(accounts))
	for _, keyed := range accounts {
		if keyed == nil || keyed.Account == nil {
			continue
		}
		var acc token.Account
		if decodeErr := bin.NewBinDecoder(keyed.Account.Data.GetBinary()).Decode(&acc); decodeErr != nil {
			c.logger.Warn().
				Str("account", keyed.Pubkey.String()).
				Err(decodeErr).
				Msg("skipping undecodable token account")
			continue
		}
		if acc.Amount == 0 {
			continue
		}
		owner := acc.Owner.String()
		balances[owner] = balances[owner].Add(decimal.NewFromUint64(acc.Amount))
	}

	set := assembleHolders(balances, totalSupply, decimals)
	c.logger.Debug().
		Int("holders", len(set.Holders)).
		Str("total_supply", totalSupply.String()).
		Msg("holder query complete")
	return set, nil
}

func (c *Client) getClient() *rpc.Client {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client == nil {
		c.client = rpc.New(c.opts.RPCURL)
	}
	return c.client
}

// assembleHolders turns aggregated wallet balances into a sorted HolderSet.
// Percentages are balance/totalSupply*100 with a zero-supply guard.
func assembleHolders(balances map[string]decimal.Decimal, totalSupply decimal.Decimal, decimals uint8) HolderSet {
	hundred := decimal.NewFromInt(100)
	holders := make([]Holder, 0, len(balances))
	for address, balance := range balances {
		if balance.Sign() <= 0 {
			continue
		}
		pct := decimal.Zero
		if totalSupply.Sign() > 0 {
			pct = balance.Div(totalSupply).Mul(hundred)
		}
		holders = append(holders, Holder{
			Address:            address,
			Balance:            balance,
			Decimals:           decimals,
			PercentageOfSupply: pct,
		})
	}

	sort.Slice(holders, func(i, j int) bool {
		cmp := holders[i].Balance.Cmp(holders[j].Balance)
		if cmp != 0 {
			return cmp > 0
		}
		return holders[i].Address < holders[j].Address
	})

	return HolderSet{Holders: holders, TotalSupply: totalSupply, Decimals: decimals}
}

func commitmentFromString(value string) rpc.CommitmentType {
	switch strings.ToLower(value) {
	case "finalized":
		return rpc.CommitmentFinalized
	case "processed":
		return rpc.CommitmentProcessed
	default:
		return rpc.CommitmentConfirmed
	}
}

var _ QueryService = (*Client)(nil)
