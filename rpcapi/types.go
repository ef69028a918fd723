// Package rpcapi binds Stratus's core operations to the standard
// Ethereum JSON-RPC wire format plus a stratus_* admin namespace
// (§6.1). It rides directly on go-ethereum's own rpc.Server rather
// than the teacher's gorilla/rpc convention: gorilla/rpc's json2 codec
// expects a single struct argument and a "Service.Method" dotted name,
// which cannot serve the positional-array, underscore-named methods
// (eth_getBlockByNumber, ...) that Stratus's own Importer requires from
// its leader over go-ethereum's rpc.Client. Using the same rpc package
// on both ends keeps the wire format symmetric.
package rpcapi

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/cloudwalk/stratus/types"
)

// rpcTransaction is one transaction as eth_getBlockByNumber and
// eth_getTransactionByHash serialize it. Raw carries the original
// signed RLP bytes verbatim — the Importer's leaderClient depends on
// this exact field to re-derive hash and signer locally.
type rpcTransaction struct {
	Hash        common.Hash     `json:"hash"`
	Nonce       hexutil.Uint64  `json:"nonce"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Input       hexutil.Bytes   `json:"input"`
	Gas         hexutil.Uint64  `json:"gas"`
	Raw         hexutil.Bytes   `json:"raw"`
	BlockNumber hexutil.Uint64  `json:"blockNumber"`
	BlockHash   common.Hash     `json:"blockHash"`
	TxIndex     hexutil.Uint64  `json:"transactionIndex"`
}

func newRPCTransaction(tx types.Transaction) rpcTransaction {
	return rpcTransaction{
		Hash:        tx.Hash,
		Nonce:       hexutil.Uint64(tx.Nonce),
		From:        tx.AddressFrom,
		To:          tx.AddressTo,
		Input:       tx.Input,
		Gas:         hexutil.Uint64(tx.Gas),
		Raw:         tx.Raw,
		BlockNumber: hexutil.Uint64(tx.BlockNumber),
		BlockHash:   tx.BlockHash,
		TxIndex:     hexutil.Uint64(tx.IdxInBlock),
	}
}

// rpcBlock is eth_getBlockByNumber's result shape. Transactions holds
// either hashes (full=false) or rpcTransaction values (full=true),
// hence the interface{} element type matching ethclient's own
// leniency here.
type rpcBlock struct {
	Number           hexutil.Uint64 `json:"number"`
	Hash             common.Hash    `json:"hash"`
	ParentHash       common.Hash    `json:"parentHash"`
	TransactionsRoot common.Hash    `json:"transactionsRoot"`
	Sha3Uncles       common.Hash    `json:"sha3Uncles"`
	LogsBloom        hexutil.Bytes  `json:"logsBloom"`
	GasUsed          hexutil.Uint64 `json:"gasUsed"`
	Timestamp        hexutil.Uint64 `json:"timestamp"`
	Transactions     []interface{}  `json:"transactions"`
}

func newRPCBlock(h types.Header, txs []types.Transaction, fullTxs bool) *rpcBlock {
	b := &rpcBlock{
		Number:           hexutil.Uint64(h.Number),
		Hash:             h.Hash,
		ParentHash:       h.ParentHash,
		TransactionsRoot: h.TransactionsRoot,
		Sha3Uncles:       h.UnclesHash,
		LogsBloom:        h.LogsBloom[:],
		GasUsed:          hexutil.Uint64(h.Gas),
		Timestamp:        hexutil.Uint64(h.Timestamp),
	}
	for _, tx := range txs {
		if fullTxs {
			b.Transactions = append(b.Transactions, newRPCTransaction(tx))
		} else {
			b.Transactions = append(b.Transactions, tx.Hash)
		}
	}
	return b
}

// rpcReceipt is eth_getTransactionReceipt's result shape.
type rpcReceipt struct {
	TransactionHash common.Hash     `json:"transactionHash"`
	TransactionIdx  hexutil.Uint64  `json:"transactionIndex"`
	BlockHash       common.Hash     `json:"blockHash"`
	BlockNumber     hexutil.Uint64  `json:"blockNumber"`
	Status          hexutil.Uint64  `json:"status"`
	GasUsed         hexutil.Uint64  `json:"gasUsed"`
	ContractAddress *common.Address `json:"contractAddress"`
	Logs            []rpcLog        `json:"logs"`
}

type rpcLog struct {
	Address         common.Address `json:"address"`
	Data            hexutil.Bytes  `json:"data"`
	Topics          []common.Hash  `json:"topics"`
	TransactionHash common.Hash    `json:"transactionHash"`
	TransactionIdx  hexutil.Uint64 `json:"transactionIndex"`
	LogIndex        hexutil.Uint64 `json:"logIndex"`
	BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	BlockHash       common.Hash    `json:"blockHash"`
}

func newRPCLog(l types.Log, topics []common.Hash) rpcLog {
	return rpcLog{
		Address:         l.Address,
		Data:            l.Data,
		Topics:          topics,
		TransactionHash: l.TransactionHash,
		TransactionIdx:  hexutil.Uint64(l.TransactionIdx),
		LogIndex:        hexutil.Uint64(l.LogIdx),
		BlockNumber:     hexutil.Uint64(l.BlockNumber),
		BlockHash:       l.BlockHash,
	}
}
