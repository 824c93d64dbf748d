// Package relay submits signed trades to a private transaction relay
// and waits for them to land on chain.
package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/quantfall/arbscan/executor"
)

const (
	contentTypeJSON      = "application/json"
	signatureHeader      = "X-Flashbots-Signature"
	methodSendPrivateTx  = "eth_sendPrivateTransaction"
	defaultPollInterval  = 2 * time.Second
	defaultInclusionWait = 60 * time.Second
)

// ChainReader is the node access the relay needs for nonces and receipts.
type ChainReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Relay signs trade transactions and dispatches them through a private
// relay endpoint, bypassing the public mempool.
type Relay struct {
	httpClient    *http.Client
	chain         ChainReader
	relayURL      string
	authKey       *ecdsa.PrivateKey
	signKey       *ecdsa.PrivateKey
	chainID       *big.Int
	pollInterval  time.Duration
	inclusionWait time.Duration
	logger        *zap.Logger
}

// Config carries the relay endpoint and signing material.
type Config struct {
	RelayURL string
	// AuthKey signs the request header identifying the searcher.
	AuthKey *ecdsa.PrivateKey
	// SignKey signs the trade transactions themselves.
	SignKey *ecdsa.PrivateKey
	ChainID *big.Int
}

// New creates a relay client.
func New(cfg Config, chain ChainReader, logger *zap.Logger) (*Relay, error) {
	if cfg.AuthKey == nil || cfg.SignKey == nil {
		return nil, errors.New("relay requires both auth and signing keys")
	}
	if cfg.ChainID == nil {
		return nil, errors.New("relay requires a chain id")
	}
	return &Relay{
		httpClient:    &http.Client{Timeout: 3 * time.Second},
		chain:         chain,
		relayURL:      cfg.RelayURL,
		authKey:       cfg.AuthKey,
		signKey:       cfg.SignKey,
		chainID:       cfg.ChainID,
		pollInterval:  defaultPollInterval,
		inclusionWait: defaultInclusionWait,
		logger:        logger,
	}, nil
}

var _ executor.Submitter = (*Relay)(nil)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Submit signs the action as a transaction and posts it to the relay.
// The returned id is the transaction hash.
func (r *Relay) Submit(ctx context.Context, action *executor.Action) (string, error) {
	from := crypto.PubkeyToAddress(r.signKey.PublicKey)
	nonce, err := r.chain.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &action.To,
		Gas:      action.GasLimit,
		GasPrice: action.GasPrice,
		Data:     action.CallData,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(r.chainID), r.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  methodSendPrivateTx,
		Params: []interface{}{
			map[string]interface{}{"tx": hexutil.Encode(raw)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := r.post(ctx, payload); err != nil {
		return "", err
	}

	hash := signed.Hash()
	r.logger.Debug("transaction relayed",
		zap.String("tx_hash", hash.Hex()),
		zap.Uint64("nonce", nonce))
	return hash.Hex(), nil
}

func (r *Relay) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.relayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	signature, err := crypto.Sign(
		accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(payload)))),
		r.authKey,
	)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	header := fmt.Sprintf("%s:%s",
		crypto.PubkeyToAddress(r.authKey.PublicKey).Hex(),
		hexutil.Encode(signature),
	)

	req.Header.Add("Content-Type", contentTypeJSON)
	req.Header.Add("Accept", contentTypeJSON)
	req.Header.Add(signatureHeader, header)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay request failed: %s", string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("relay rejected transaction: %s", rpcResp.Error.Message)
	}
	return nil
}

// AwaitInclusion polls for the transaction receipt until it lands or
// the inclusion window expires.
func (r *Relay) AwaitInclusion(ctx context.Context, id string) error {
	hash := common.HexToHash(id)

	ctx, cancel := context.WithTimeout(ctx, r.inclusionWait)
	defer cancel()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction %s not included: %w", id, ctx.Err())
		case <-ticker.C:
			receipt, err := r.chain.TransactionReceipt(ctx, hash)
			if err != nil {
				continue
			}
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted on chain", id)
			}
			r.logger.Debug("transaction included",
				zap.String("tx_hash", id),
				zap.Uint64("block", receipt.BlockNumber.Uint64()))
			return nil
		}
	}
}
