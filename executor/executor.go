package executor

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"

	"github.com/cloudwalk/stratus/chainspec"
	"github.com/cloudwalk/stratus/metrics"
	"github.com/cloudwalk/stratus/storage"
	"github.com/cloudwalk/stratus/types"
)

// chainConfig pins every fork up to Berlin at genesis. The network never
// charges gas (BlockContext.BaseFee stays nil throughout), so there is no
// need to enable London's base-fee mechanics.
var chainConfig = &params.ChainConfig{
	ChainID:             big.NewInt(chainspec.ChainID),
	HomesteadBlock:      big.NewInt(0),
	EIP150Block:         big.NewInt(0),
	EIP155Block:         big.NewInt(0),
	EIP158Block:         big.NewInt(0),
	ByzantiumBlock:      big.NewInt(0),
	ConstantinopleBlock: big.NewInt(0),
	PetersburgBlock:     big.NewInt(0),
	IstanbulBlock:       big.NewInt(0),
	MuirGlacierBlock:    big.NewInt(0),
	BerlinBlock:         big.NewInt(0),
}

// BlockContext carries the ambient values the EVM needs that aren't part
// of the transaction itself (§4.2).
type BlockContext struct {
	Number    uint64
	Timestamp uint64
	Coinbase  common.Address
}

// Receipt is the outcome of running one transaction (§4.2).
type Receipt struct {
	TxHash          common.Hash
	Status          uint64 // 1 success, 0 failure
	GasUsed         uint64
	Logs            []types.Log
	Topics          []types.Topic
	ContractAddress *common.Address
	Kind            Kind
	RevertReason    []byte
}

// Execution is the full result of Execute: the receipt plus the account
// and slot versions the transaction produced.
type Execution struct {
	Receipt  Receipt
	Accounts []types.Account
	Slots    []types.AccountSlot
}

// signer is the only signature scheme Stratus accepts: EIP-155 replay
// protection pinned to the network's own chain id, matching how the
// teacher's VM fixes its signer to the configured chain config rather
// than accepting every historical signing scheme.
var signer = ethtypes.NewEIP155Signer(big.NewInt(chainspec.ChainID))

// DecodeRawTransaction parses raw (as produced by eth_sendRawTransaction)
// and recovers its signer. It does not check nonce or balance — callers
// run AdmitTransaction for that.
func DecodeRawTransaction(raw []byte) (*ethtypes.Transaction, common.Address, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, common.Address{}, fmt.Errorf("%w: %w", ErrMalformedRawTx, err)
	}
	if tx.ChainId() == nil || tx.ChainId().Cmp(big.NewInt(chainspec.ChainID)) != 0 {
		return nil, common.Address{}, ErrChainIDMismatch
	}
	from, err := ethtypes.Sender(signer, tx)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return tx, from, nil
}

// AdmitTransaction applies the leader-only admission rules (§4.2) that
// remain once DecodeRawTransaction has checked the chain id and recovered
// the signer: nonce equal to the signer's current nonce, and a gas limit
// within the network maximum. A transaction that fails admission never
// enters the pending set and is never persisted.
func AdmitTransaction(tx *ethtypes.Transaction, from common.Address, currentNonce uint64) error {
	if tx.Gas() > chainspec.MaxGasLimit {
		return ErrGasLimitTooHigh
	}
	if tx.Nonce() != currentNonce {
		return ErrNonceMismatch
	}
	return nil
}

// Execute runs tx against snap under bctx, as either the Miner assembling
// a new block or the Importer re-deriving one it pulled from a leader.
// txIndex is the transaction's position within the block being built,
// used only to stamp log/topic ordinals — it has no bearing on EVM
// semantics since BlockContext carries a fixed zero gas price and this
// node never charges for inclusion order. logIdxBase is the number of
// logs already emitted earlier in this same block; callers must carry it
// across transactions (rather than starting over at 0 each call) so that
// every log and its topics get a distinct LogIdx within the block — the
// store then offsets these block-local values to make log_idx globally
// unique across the whole history at commit time (§3, §6.3).
func Execute(tx *ethtypes.Transaction, from common.Address, txIndex int, logIdxBase uint64, snap storage.Snapshot, bctx BlockContext) (*Execution, error) {
	statedb := NewStateDB(snap)
	statedb.SetTxContext(tx.Hash(), txIndex)

	blockCtx := vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     func(uint64) common.Hash { return common.Hash{} },
		Coinbase:    bctx.Coinbase,
		BlockNumber: new(big.Int).SetUint64(bctx.Number),
		Time:        bctx.Timestamp,
		Difficulty:  big.NewInt(0),
		GasLimit:    chainspec.MaxGasLimit,
		BaseFee:     nil,
	}
	txCtx := vm.TxContext{Origin: from, GasPrice: big.NewInt(0)}
	evm := vm.NewEVM(blockCtx, txCtx, statedb, chainConfig, vm.Config{})

	msg := &core.Message{
		To:                tx.To(),
		From:              from,
		Nonce:             tx.Nonce(),
		Value:             tx.Value(),
		GasLimit:          tx.Gas(),
		GasPrice:          big.NewInt(0),
		GasFeeCap:         big.NewInt(0),
		GasTipCap:         big.NewInt(0),
		Data:              tx.Data(),
		AccessList:        tx.AccessList(),
		SkipAccountChecks: false,
	}
	gp := new(core.GasPool).AddGas(msg.GasLimit)

	result, err := core.ApplyMessage(evm, msg, gp)

	receipt := Receipt{TxHash: tx.Hash()}
	if err != nil {
		// preCheck failures (bad nonce, insufficient funds for the value +
		// gas budget) never reach the interpreter, so nothing is metered;
		// the receipt reports the full gas limit as used, and the spec
		// still consumes the nonce and records a failed receipt
		// rather than rejecting the transaction outright, since by this
		// point it has already cleared admission (or is being replayed by
		// the Importer, which does not re-run admission at all).
		receipt.Status = 0
		receipt.GasUsed = tx.Gas()
		receipt.Kind = classifyPreCheckError(err)
		statedb.SetNonce(from, currentNonceOrBump(statedb, from, tx.Nonce()))
		accounts, slots := statedb.Diff(bctx.Number)
		metrics.ExecutionOutcomes.WithLabelValues(receipt.Kind.String()).Inc()
		return &Execution{Receipt: receipt, Accounts: accounts, Slots: slots}, nil
	}

	receipt.GasUsed = result.UsedGas
	if result.Failed() {
		receipt.Status = 0
		receipt.Kind = classifyExecutionError(result.Err)
		if result.Err == vm.ErrExecutionReverted {
			receipt.RevertReason = result.Revert()
		}
	} else {
		receipt.Status = 1
		receipt.Kind = OK
		if tx.To() == nil {
			addr := crypto.CreateAddress(from, tx.Nonce())
			receipt.ContractAddress = &addr
		}
	}

	for idx, l := range statedb.Logs() {
		logIdx := logIdxBase + uint64(idx)
		receipt.Logs = append(receipt.Logs, types.Log{
			Address:         l.Address,
			Data:            l.Data,
			TransactionHash: tx.Hash(),
			TransactionIdx:  uint64(txIndex),
			LogIdx:          logIdx,
			BlockNumber:     bctx.Number,
		})
		for _, topic := range l.Topics {
			receipt.Topics = append(receipt.Topics, types.Topic{
				Value:           topic,
				TransactionHash: tx.Hash(),
				TransactionIdx:  uint64(txIndex),
				LogIdx:          logIdx,
				BlockNumber:     bctx.Number,
			})
		}
	}

	accounts, slots := statedb.Diff(bctx.Number)
	metrics.ExecutionOutcomes.WithLabelValues(receipt.Kind.String()).Inc()
	return &Execution{Receipt: receipt, Accounts: accounts, Slots: slots}, nil
}

func currentNonceOrBump(s *StateDB, addr common.Address, txNonce uint64) uint64 {
	cur := s.GetNonce(addr)
	if txNonce >= cur {
		return txNonce + 1
	}
	return cur
}

func classifyPreCheckError(err error) Kind {
	switch {
	case err == core.ErrNonceTooLow:
		return NonceTooLow
	case err == core.ErrNonceTooHigh:
		return NonceTooHigh
	case err == core.ErrInsufficientFunds || err == core.ErrInsufficientFundsForTransfer:
		return InsufficientBalance
	default:
		return OutOfGas
	}
}

func classifyExecutionError(err error) Kind {
	switch err {
	case vm.ErrOutOfGas, vm.ErrGasUintOverflow:
		return OutOfGas
	case vm.ErrExecutionReverted:
		return Revert
	case vm.ErrInvalidJump, vm.ErrInvalidCode:
		return InvalidOpcode
	default:
		return InvalidOpcode
	}
}
