package consensus

import (
	"fmt"

	"github.com/tendermint/tendermint/libs/cmap"
	"github.com/tendermint/tendermint/libs/events"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/p2p"

	"checkpointbft/types"
)

const (
	ProposalChannel = byte(0x21)
	VoteChannel     = byte(0x22)
	NewViewChannel  = byte(0x23)
	QCChannel       = byte(0x24)

	maxMsgSize = 1048576 // 1MB
)

// ------ Event ------
// engine events the reactor turns into broadcasts
const (
	EventNewProposal = "NewProposal"
	EventNewVote     = "NewVote"
	EventNewView     = "NewView"
	EventNewQC       = "NewQC"
)

// ------ Message ------
type Message interface {
	ValidateBasic() error
}

// ------- Reactor ------

// Reactor bridges the engine and the p2p switch: engine events go out as
// channel broadcasts, incoming channel bytes go into the engine's peer
// queue. The reactor never interprets consensus semantics; the engine
// validates everything it is fed.
type Reactor struct {
	p2p.BaseReactor

	peers *cmap.CMap

	engine *Engine
}

type ReactorOption func(*Reactor)

func NewReactor(engine *Engine, options ...ReactorOption) *Reactor {
	conR := &Reactor{
		peers:  cmap.NewCMap(),
		engine: engine,
	}
	conR.BaseReactor = *p2p.NewBaseReactor("Consensus", conR)

	for _, option := range options {
		option(conR)
	}
	return conR
}

func (conR *Reactor) OnStart() error {
	conR.Logger.Info("consensus reactor started")
	conR.subscribeToBroadcastEvents()
	return nil
}

func (conR *Reactor) OnStop() {
	conR.engine.eventSwitch.RemoveListener(listenerID)
}

func (conR *Reactor) GetChannels() []*p2p.ChannelDescriptor {
	return []*p2p.ChannelDescriptor{
		{
			ID:                  ProposalChannel,
			Priority:            10,
			SendQueueCapacity:   100,
			RecvMessageCapacity: maxMsgSize,
		},
		{
			ID:                  VoteChannel,
			Priority:            10,
			SendQueueCapacity:   100,
			RecvMessageCapacity: maxMsgSize,
		},
		{
			ID:                  NewViewChannel,
			Priority:            5,
			SendQueueCapacity:   100,
			RecvMessageCapacity: maxMsgSize,
		},
		{
			ID:                  QCChannel,
			Priority:            5,
			SendQueueCapacity:   100,
			RecvMessageCapacity: maxMsgSize,
		},
	}
}

func (conR *Reactor) InitPeer(peer p2p.Peer) p2p.Peer {
	return peer
}

func (conR *Reactor) AddPeer(peer p2p.Peer) {
	conR.peers.Set(string(peer.ID()), peer)
}

func (conR *Reactor) RemovePeer(peer p2p.Peer, reason interface{}) {
	conR.peers.Delete(string(peer.ID()))
}

// Receive decodes one wire message and funnels it to the engine. Garbage
// from a peer is logged and dropped; it never reaches the engine.
func (conR *Reactor) Receive(chID byte, src p2p.Peer, msgBytes []byte) {
	if !conR.IsRunning() {
		return
	}

	var msg Message
	switch chID {
	case ProposalChannel:
		var proposal types.Proposal
		if err := tmjson.Unmarshal(msgBytes, &proposal); err != nil {
			conR.Logger.Error("failed to decode proposal", "err", err, "peer", src.ID())
			return
		}
		msg = &ProposalMessage{Proposal: &proposal}

	case VoteChannel:
		var vote types.Vote
		if err := tmjson.Unmarshal(msgBytes, &vote); err != nil {
			conR.Logger.Error("failed to decode vote", "err", err, "peer", src.ID())
			return
		}
		msg = &VoteMessage{Vote: &vote}

	case NewViewChannel:
		var nv types.NewView
		if err := tmjson.Unmarshal(msgBytes, &nv); err != nil {
			conR.Logger.Error("failed to decode new-view", "err", err, "peer", src.ID())
			return
		}
		msg = &NewViewMessage{NewView: &nv}

	case QCChannel:
		var qc types.QuorumCert
		if err := tmjson.Unmarshal(msgBytes, &qc); err != nil {
			conR.Logger.Error("failed to decode certificate", "err", err, "peer", src.ID())
			return
		}
		msg = &QCMessage{QC: &qc}

	default:
		conR.Logger.Error(fmt.Sprintf("unknown channel %X", chID))
		return
	}

	if err := msg.ValidateBasic(); err != nil {
		conR.Logger.Error("peer sent a malformed message", "err", err, "peer", src.ID())
		return
	}
	conR.Logger.Debug("received message", "msg", msg, "peer", src.ID())
	conR.engine.peerMsgQueue <- msgInfo{Msg: msg, PeerID: src.ID()}
}

const listenerID = "consensus-reactor"

// subscribeToBroadcastEvents relays what the engine accepted or produced.
// The engine fires events only for messages it validated, so the reactor
// broadcasts without a second look.
func (conR *Reactor) subscribeToBroadcastEvents() {
	conR.engine.eventSwitch.AddListenerForEvent(listenerID, EventNewProposal, func(data events.EventData) {
		conR.broadcast(ProposalChannel, data.(*types.Proposal))
	})
	conR.engine.eventSwitch.AddListenerForEvent(listenerID, EventNewVote, func(data events.EventData) {
		conR.broadcast(VoteChannel, data.(*types.Vote))
	})
	conR.engine.eventSwitch.AddListenerForEvent(listenerID, EventNewView, func(data events.EventData) {
		conR.broadcast(NewViewChannel, data.(*types.NewView))
	})
	conR.engine.eventSwitch.AddListenerForEvent(listenerID, EventNewQC, func(data events.EventData) {
		conR.broadcast(QCChannel, data.(*types.QuorumCert))
	})
}

func (conR *Reactor) broadcast(chID byte, msg interface{}) {
	bz, err := tmjson.Marshal(msg)
	if err != nil {
		conR.Logger.Error("failed to encode broadcast", "err", err, "msg", msg)
		return
	}
	conR.Switch.Broadcast(chID, bz)
}

//-----------------------------------------------------------------------------
// wire messages

type ProposalMessage struct {
	Proposal *types.Proposal
}

func (msg *ProposalMessage) ValidateBasic() error {
	return msg.Proposal.ValidateBasic()
}

func (msg *ProposalMessage) String() string {
	return fmt.Sprintf("[Proposal %v]", msg.Proposal)
}

type VoteMessage struct {
	Vote *types.Vote
}

func (msg *VoteMessage) ValidateBasic() error {
	return msg.Vote.ValidateBasic()
}

func (msg *VoteMessage) String() string {
	return fmt.Sprintf("[Vote %v]", msg.Vote)
}

type NewViewMessage struct {
	NewView *types.NewView
}

func (msg *NewViewMessage) ValidateBasic() error {
	return msg.NewView.ValidateBasic()
}

func (msg *NewViewMessage) String() string {
	return fmt.Sprintf("[NewView %v]", msg.NewView)
}

type QCMessage struct {
	QC *types.QuorumCert
}

func (msg *QCMessage) ValidateBasic() error {
	return msg.QC.ValidateBasic()
}

func (msg *QCMessage) String() string {
	return fmt.Sprintf("[QC %v]", msg.QC)
}

// ----- MsgInfo -----
// message plus provenance, the unit the engine's queues carry
type msgInfo struct {
	Msg    Message
	PeerID p2p.ID
}
