// Package eth submits finalized settlements to the on-chain settlement
// contract. It is the only component that talks to the ledger; everything
// upstream sees it through domain.LedgerClient and only ever observes
// success or failure.
package eth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/veritaslabs/oraclesettle/internal/crypto"
	"github.com/veritaslabs/oraclesettle/internal/domain"
)

// settleABI is the fragment of the settlement contract the engine calls.
const settleABI = `[{
	"name": "submitSettlement",
	"type": "function",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "marketHash", "type": "bytes32"},
		{"name": "leaf", "type": "bytes32"},
		{"name": "outcome", "type": "uint64"},
		{"name": "decidedAt", "type": "uint64"}
	],
	"outputs": []
}]`

// Config holds the parameters needed to reach the settlement contract.
type Config struct {
	RPCURL          string
	ContractAddress string
	ChainID         int64
	GasLimit        uint64
	Key             crypto.KeyConfig
}

// Client implements domain.LedgerClient against an EVM settlement contract.
type Client struct {
	eth      *ethclient.Client
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	gasLimit uint64
}

// New dials the RPC endpoint, resolves the signing key, and returns a ready
// Client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(settleABI))
	if err != nil {
		return nil, fmt.Errorf("eth: parse abi: %w", err)
	}

	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("eth: invalid contract address %q", cfg.ContractAddress)
	}

	keyHex, err := crypto.LoadKey(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("eth: load key: %w", err)
	}
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("eth: parse key: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("eth: dial %s: %w", cfg.RPCURL, err)
	}

	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 300_000
	}

	return &Client{
		eth:      eth,
		abi:      parsed,
		contract: common.HexToAddress(cfg.ContractAddress),
		key:      pk,
		from:     ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:  big.NewInt(cfg.ChainID),
		gasLimit: gasLimit,
	}, nil
}

// Submit sends one settlement to the contract and waits for it to be mined.
// Every error is returned as-is for the relay worker's retry accounting; the
// worker, not this client, decides whether to try again.
func (c *Client) Submit(ctx context.Context, marketHash, leaf [32]byte, outcome, decidedAt uint64) error {
	input, err := c.abi.Pack("submitSettlement", marketHash, leaf, outcome, decidedAt)
	if err != nil {
		return fmt.Errorf("eth: pack submitSettlement: %w", err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return fmt.Errorf("eth: pending nonce: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("eth: suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Gas:      c.gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return fmt.Errorf("eth: sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("eth: send tx: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return fmt.Errorf("eth: wait mined %s: %w", signed.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("eth: tx %s reverted", signed.Hash())
	}

	return nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Compile-time interface check.
var _ domain.LedgerClient = (*Client)(nil)
