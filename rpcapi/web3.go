package rpcapi

// Web3Service implements web3_clientVersion.
type Web3Service struct{}

// ClientVersion returns the fixed client identifier spec.md's metadata
// test expects.
func (Web3Service) ClientVersion() string { return "stratus" }
