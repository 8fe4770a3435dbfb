package logger

import (
	"fmt"
	"log/slog"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/quartzledger/quartz/types"
)

/*
Log attribute key values. Generally shouldn't be used directly, use the
appropriate "attribute constructor function" instead.

Only define names here if they are common for multiple packages, package
specific names should be defined in the package.
*/
const (
	NodeIDKey   = "node_id"
	PeerIDKey   = "peer_id"
	ErrorKey    = "err"
	RoundKey    = "round"
	TxIDKey     = "tx_id"
	KindKey     = "kind"
	StatusKey   = "status"
	CategoryKey = "category"
)

/*
NodeID adds the consensus node id field.

This function should be used with logger.With() to create a sub-logger for
the node rather than adding the call to individual logging calls.
*/
func NodeID(id types.NodeID) slog.Attr {
	return slog.Uint64(NodeIDKey, uint64(id))
}

// PeerID adds the node's network layer identity.
func PeerID(id peer.ID) slog.Attr {
	return slog.Any(PeerIDKey, id)
}

/*
Error adds error to the log

	if err := f(); err != nil {
		log.Error("calling f", logger.Error(err))
	}
*/
func Error(err error) slog.Attr {
	return slog.Any(ErrorKey, err)
}

// Round adds the consensus round number of the logging call.
func Round(round uint64) slog.Attr {
	return slog.Uint64(RoundKey, round)
}

// TransactionID identifies the transaction associated to the logging call.
func TransactionID(id types.TransactionID) slog.Attr {
	return slog.String(TxIDKey, id.String())
}

func Kind(kind types.TransactionKind) slog.Attr {
	return slog.String(KindKey, kind.String())
}

func Status(status types.Status) slog.Attr {
	return slog.String(StatusKey, status.String())
}

func Category(category types.DispatchCategory) slog.Attr {
	return slog.String(CategoryKey, category.String())
}

// Data adds an additional data field to the message.
func Data(d any) slog.Attr {
	return slog.String("data", fmt.Sprintf("%+v", d))
}
