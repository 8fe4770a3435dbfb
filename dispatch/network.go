package dispatch

import (
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/quartzledger/quartz/types"
)

// NodeInfo describes one consensus node: its ledger identifier, the account
// collecting its node fees and its network-layer peer identity.
type NodeInfo struct {
	NodeID    types.NodeID
	AccountID types.AccountID
	PeerID    peer.ID
}

// NetworkInfo resolves node identities for the dispatch pipeline. Resolution
// may fail early in a node's life, before the address book round-trips; the
// pipeline treats an unresolved self node as "not me" everywhere.
type NetworkInfo interface {
	// SelfNodeInfo returns this node's own entry, or false while unresolved.
	SelfNodeInfo() (NodeInfo, bool)
	// NodeAccount returns the fee collection account of the given node.
	NodeAccount(id types.NodeID) (types.AccountID, bool)
}

// StaticNetworkInfo is a NetworkInfo backed by a fixed address book.
type StaticNetworkInfo struct {
	Self  types.NodeID
	Nodes map[types.NodeID]NodeInfo
}

func (n *StaticNetworkInfo) SelfNodeInfo() (NodeInfo, bool) {
	info, ok := n.Nodes[n.Self]
	return info, ok
}

func (n *StaticNetworkInfo) NodeAccount(id types.NodeID) (types.AccountID, bool) {
	info, ok := n.Nodes[id]
	if !ok {
		return 0, false
	}
	return info.AccountID, true
}
