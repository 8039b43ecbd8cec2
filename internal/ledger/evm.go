package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/robalobadob/zoltar/internal/commitment"
)

// Config locates the contract and the operator key.
type Config struct {
	RPCURL         string
	Contract       string
	PrivateKey     string // hex, optional; without it the client is read-only
	ConfirmTimeout time.Duration
}

// EVM talks to the contract over JSON-RPC.
type EVM struct {
	log            zerolog.Logger
	client         *ethclient.Client
	contract       *bind.BoundContract
	address        common.Address
	key            *ecdsa.PrivateKey
	chainID        *big.Int
	confirmTimeout time.Duration

	txMu sync.Mutex // one pending send at a time keeps nonces ordered

	feeOnce sync.Once
	fee     *big.Int
	feeErr  error
}

// Dial connects to cfg.RPCURL and binds the contract.
func Dial(ctx context.Context, cfg Config, log zerolog.Logger) (*EVM, error) {
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("%w: contract %q", ErrBadAddress, cfg.Contract)
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}

	e := &EVM{
		log:            log.With().Str("component", "ledger").Logger(),
		client:         client,
		address:        common.HexToAddress(cfg.Contract),
		chainID:        chainID,
		confirmTimeout: cfg.ConfirmTimeout,
	}
	if e.confirmTimeout <= 0 {
		e.confirmTimeout = 2 * time.Minute
	}
	e.contract = bind.NewBoundContract(e.address, parsed, client, client, client)

	if k := strings.TrimSpace(cfg.PrivateKey); k != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(k, "0x"))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("parse operator key: %w", err)
		}
		e.key = key
		e.log.Info().
			Str("operator", crypto.PubkeyToAddress(key.PublicKey).Hex()).
			Str("contract", e.address.Hex()).
			Str("chain_id", chainID.String()).
			Msg("ledger client ready")
	} else {
		e.log.Warn().Str("contract", e.address.Hex()).Msg("ledger client is read-only")
	}
	return e, nil
}

// Close releases the RPC connection.
func (e *EVM) Close() { e.client.Close() }

func (e *EVM) CanTransact() bool { return e.key != nil }

func (e *EVM) RoundInfo(ctx context.Context) (RoundInfo, error) {
	var out []interface{}
	if err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getGameInfo"); err != nil {
		return RoundInfo{}, fmt.Errorf("getGameInfo: %w", err)
	}
	return decodeRoundInfo(out)
}

func (e *EVM) HasEntryFeePaid(ctx context.Context, addr string) (bool, error) {
	player, err := parseAddress(addr)
	if err != nil {
		return false, err
	}
	var out []interface{}
	if err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, "hasBoughtIn", player); err != nil {
		return false, fmt.Errorf("hasBoughtIn: %w", err)
	}
	paid, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("hasBoughtIn: unexpected %T", out[0])
	}
	return paid, nil
}

func (e *EVM) EntryCount(ctx context.Context, addr string) (int, error) {
	player, err := parseAddress(addr)
	if err != nil {
		return 0, err
	}
	fee, err := e.entryFee(ctx)
	if err != nil {
		return 0, err
	}
	var out []interface{}
	if err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPlayerBuyIn", player); err != nil {
		return 0, fmt.Errorf("getPlayerBuyIn: %w", err)
	}
	total, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("getPlayerBuyIn: unexpected %T", out[0])
	}
	return entriesFor(total, fee), nil
}

func (e *EVM) StartRound(ctx context.Context, c commitment.Digest) (Tx, error) {
	return e.transact(ctx, "startGame", [32]byte(c))
}

func (e *EVM) EndRound(ctx context.Context) (Tx, error) {
	return e.transact(ctx, "endGame")
}

func (e *EVM) DeclareWinner(ctx context.Context, addr string) (Tx, error) {
	winner, err := parseAddress(addr)
	if err != nil {
		return Tx{}, err
	}
	return e.transact(ctx, "declareWinner", winner)
}

// AwaitConfirmation blocks until tx is mined or the confirmation timeout
// elapses. A reverted receipt is an error.
func (e *EVM) AwaitConfirmation(ctx context.Context, tx Tx) error {
	if tx.raw == nil {
		return fmt.Errorf("await %s: transaction not sent by this client", tx.Hash)
	}
	ctx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, e.client, tx.raw)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s after %s", ErrUnconfirmed, tx.Hash, e.confirmTimeout)
		}
		return fmt.Errorf("await %s: %w", tx.Hash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s in block %s", ErrReverted, tx.Hash, receipt.BlockNumber)
	}
	e.log.Debug().Str("tx", tx.Hash).Str("block", receipt.BlockNumber.String()).Msg("transaction confirmed")
	return nil
}

func (e *EVM) transact(ctx context.Context, method string, args ...interface{}) (Tx, error) {
	if e.key == nil {
		return Tx{}, ErrReadOnly
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()

	opts, err := bind.NewKeyedTransactorWithChainID(e.key, e.chainID)
	if err != nil {
		return Tx{}, fmt.Errorf("%s: transactor: %w", method, err)
	}
	opts.Context = ctx
	raw, err := e.contract.Transact(opts, method, args...)
	if err != nil {
		return Tx{}, fmt.Errorf("%s: %w", method, err)
	}
	tx := Tx{Hash: raw.Hash().Hex(), raw: raw}
	e.log.Info().Str("method", method).Str("tx", tx.Hash).Msg("transaction sent")
	return tx, nil
}

func (e *EVM) entryFee(ctx context.Context) (*big.Int, error) {
	e.feeOnce.Do(func() {
		var out []interface{}
		if err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, "BUY_IN"); err != nil {
			e.feeErr = fmt.Errorf("BUY_IN: %w", err)
			return
		}
		fee, ok := out[0].(*big.Int)
		if !ok || fee.Sign() <= 0 {
			e.feeErr = fmt.Errorf("BUY_IN: unexpected value %v", out[0])
			return
		}
		e.fee = fee
	})
	return e.fee, e.feeErr
}

// decodeRoundInfo converts getGameInfo's unpacked outputs.
func decodeRoundInfo(out []interface{}) (RoundInfo, error) {
	if len(out) != 6 {
		return RoundInfo{}, fmt.Errorf("getGameInfo: want 6 outputs, got %d", len(out))
	}
	id, ok1 := out[0].(*big.Int)
	c, ok2 := out[1].([32]byte)
	pot, ok3 := out[2].(*big.Int)
	end, ok4 := out[3].(*big.Int)
	active, ok5 := out[4].(bool)
	remaining, ok6 := out[5].(*big.Int)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return RoundInfo{}, fmt.Errorf("getGameInfo: unexpected output types")
	}
	return RoundInfo{
		GameID:        id.Int64(),
		Commitment:    commitment.Digest(c),
		Pot:           pot,
		EndTime:       end.Uint64(),
		Active:        active,
		TimeRemaining: remaining.Uint64(),
	}, nil
}

// entriesFor converts a cumulative paid amount into whole entry fees.
func entriesFor(total, fee *big.Int) int {
	if total == nil || fee == nil || fee.Sign() <= 0 {
		return 0
	}
	return int(new(big.Int).Quo(total, fee).Int64())
}

func parseAddress(addr string) (common.Address, error) {
	if !common.IsHexAddress(addr) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrBadAddress, addr)
	}
	return common.HexToAddress(addr), nil
}
