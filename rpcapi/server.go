package rpcapi

import (
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/cloudwalk/stratus/miner"
	"github.com/cloudwalk/stratus/mode"
	"github.com/cloudwalk/stratus/storage"
)

// NewServer builds the go-ethereum rpc.Server carrying every namespace
// §6.1 requires: eth, net, web3, stratus. One Server backs both the
// HTTP and the WebSocket listener, matching how a single dispatch table
// serves every transport in the teacher's own RPC layer.
func NewServer(store storage.Backend, m *miner.Miner, mm *mode.Machine) (*rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", NewEthService(store, m, mm)); err != nil {
		return nil, err
	}
	if err := srv.RegisterName("net", NetService{}); err != nil {
		return nil, err
	}
	if err := srv.RegisterName("web3", Web3Service{}); err != nil {
		return nil, err
	}
	if err := srv.RegisterName("stratus", NewStratusService(mm)); err != nil {
		return nil, err
	}
	return srv, nil
}

// HTTPHandler returns the HTTP transport: srv.ServeHTTP implements the
// JSON-RPC 2.0 POST contract directly.
func HTTPHandler(srv *rpc.Server) http.Handler {
	return srv
}

// WSHandler returns the WebSocket transport: rpc.Server's own
// WebsocketHandler upgrades the connection (via its internal
// gorilla/websocket dependency) and drives the same JSON-RPC dispatch
// table as HTTPHandler.
func WSHandler(srv *rpc.Server, allowedOrigins []string) http.Handler {
	return srv.WebsocketHandler(allowedOrigins)
}
