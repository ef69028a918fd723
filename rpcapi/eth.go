package rpcapi

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cloudwalk/stratus/chainspec"
	"github.com/cloudwalk/stratus/executor"
	"github.com/cloudwalk/stratus/miner"
	"github.com/cloudwalk/stratus/mode"
	"github.com/cloudwalk/stratus/storage"
)

// EthService implements the standard eth_* namespace (§6.1). Its
// methods are exported with the exact capitalization go-ethereum's
// rpc.Server expects: RegisterName("eth", svc) maps GetBlockByNumber to
// "eth_getBlockByNumber" by lower-casing the first rune.
type EthService struct {
	store storage.Backend
	miner *miner.Miner
	mode  *mode.Machine
}

// NewEthService returns the eth_* namespace bound to store, miner and mode.
func NewEthService(store storage.Backend, m *miner.Miner, mm *mode.Machine) *EthService {
	return &EthService{store: store, miner: m, mode: mm}
}

// ChainId returns the network's fixed EIP-155 chain id.
func (e *EthService) ChainId() hexutil.Uint64 { return hexutil.Uint64(chainspec.ChainID) }

// GasPrice always returns zero; this network never charges gas.
func (e *EthService) GasPrice() hexutil.Uint64 { return 0 }

// BlockNumber returns the current head, or 0 if no block has been
// committed yet.
func (e *EthService) BlockNumber(ctx context.Context) hexutil.Uint64 {
	head, _ := e.store.Head(ctx)
	return hexutil.Uint64(head)
}

// resolveBlockNumber accepts a hex quantity or one of the standard
// block tags ("latest", "pending", "earliest") and resolves it against
// the store's current head.
func (e *EthService) resolveBlockNumber(ctx context.Context, numOrTag string) (uint64, error) {
	switch numOrTag {
	case "", "latest", "pending":
		head, _ := e.store.Head(ctx)
		return head, nil
	case "earliest":
		return 0, nil
	default:
		return hexutil.DecodeUint64(numOrTag)
	}
}

// GetBlockByNumber implements eth_getBlockByNumber(numOrTag, fullTxs).
// When fullTxs is true, each transaction is serialized with its "raw"
// field populated — the exact contract the Importer's leaderClient
// depends on to re-derive hash and signer locally.
func (e *EthService) GetBlockByNumber(ctx context.Context, numOrTag string, fullTxs bool) (*rpcBlock, error) {
	number, err := e.resolveBlockNumber(ctx, numOrTag)
	if err != nil {
		return nil, err
	}
	header, ok, err := e.store.Header(ctx, number)
	if err != nil || !ok {
		return nil, err
	}
	txs, err := e.store.BlockTransactions(ctx, number)
	if err != nil {
		return nil, err
	}
	return newRPCBlock(header, txs, fullTxs), nil
}

// GetTransactionByHash implements eth_getTransactionByHash.
func (e *EthService) GetTransactionByHash(ctx context.Context, hash common.Hash) (*rpcTransaction, error) {
	tx, ok, err := e.store.Transaction(ctx, hash)
	if err != nil || !ok {
		return nil, err
	}
	out := newRPCTransaction(tx)
	return &out, nil
}

// GetTransactionReceipt implements eth_getTransactionReceipt.
func (e *EthService) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*rpcReceipt, error) {
	r, ok, err := e.store.Receipt(ctx, hash)
	if err != nil || !ok {
		return nil, err
	}

	filter := storage.LogFilter{FromBlock: r.BlockNumber, ToBlock: r.BlockNumber}
	allLogs, err := e.store.GetLogs(ctx, filter)
	if err != nil {
		return nil, err
	}
	var logs []rpcLog
	for _, lg := range allLogs {
		if lg.TransactionHash != hash {
			continue
		}
		topics, err := e.store.LogTopics(ctx, lg.LogIdx)
		if err != nil {
			return nil, err
		}
		logs = append(logs, newRPCLog(lg, topics))
	}

	return &rpcReceipt{
		TransactionHash: r.TransactionHash,
		TransactionIdx:  hexutil.Uint64(r.TransactionIdx),
		BlockHash:       r.BlockHash,
		BlockNumber:     hexutil.Uint64(r.BlockNumber),
		Status:          hexutil.Uint64(r.Status),
		GasUsed:         hexutil.Uint64(r.GasUsed),
		ContractAddress: r.ContractAddress,
		Logs:            logs,
	}, nil
}

// GetTransactionCount implements eth_getTransactionCount(addr, blockTag).
func (e *EthService) GetTransactionCount(ctx context.Context, addr common.Address, numOrTag string) (hexutil.Uint64, error) {
	number, err := e.resolveBlockNumber(ctx, numOrTag)
	if err != nil {
		return 0, err
	}
	nonce, err := e.store.NonceAt(ctx, addr, number)
	if err != nil {
		return 0, err
	}
	return hexutil.Uint64(nonce), nil
}

// SendRawTransaction implements eth_sendRawTransaction(rawBytes). The
// returned hash is always keccak256(raw), computed before admission so
// callers can correlate it even if admission later fails.
func (e *EthService) SendRawTransaction(ctx context.Context, raw hexutil.Bytes) (common.Hash, error) {
	hash := crypto.Keccak256Hash(raw)
	if !e.mode.TransactionsEnabled() {
		return hash, &mode.RPCError{Code: -32009, Message: "Transaction processing is disabled."}
	}

	tx, from, err := executor.DecodeRawTransaction(raw)
	if err != nil {
		return hash, err
	}

	head, _ := e.store.Head(ctx)
	currentNonce, err := e.store.NonceAt(ctx, from, head)
	if err != nil {
		return hash, err
	}
	if err := executor.AdmitTransaction(tx, from, currentNonce); err != nil {
		return hash, err
	}

	if _, err := e.miner.Pending().Submit(tx, from); err != nil {
		return hash, err
	}
	return hash, nil
}

// GetLogs implements eth_getLogs({address?, fromBlock?, toBlock?, topics?}).
func (e *EthService) GetLogs(ctx context.Context, args GetLogsArgs) ([]rpcLog, error) {
	filter, err := args.toFilter(ctx, e)
	if err != nil {
		return nil, err
	}
	logs, err := e.store.GetLogs(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]rpcLog, 0, len(logs))
	for _, lg := range logs {
		topics, err := e.store.LogTopics(ctx, lg.LogIdx)
		if err != nil {
			return nil, err
		}
		out = append(out, newRPCLog(lg, topics))
	}
	return out, nil
}
