// Package consensus drives the federation's agreement on the checkpoint
// chain.
//
// The Engine owns one view at a time. Inside a view the round ladders
// through the phases
//
//	        (leader's proposal accepted, prepare vote cast)
//	Prepare +--------------------------------------------+
//	        | quorum of prepare votes                    |
//	        v                                            |
//	PreCommit +---------------------------+              |
//	        | quorum of pre-commit votes  |              |
//	        v (locks the block)           |              |
//	Commit  +------------+                |              |
//	        | quorum of commit votes      |              |
//	        v                             |              |
//	Decide  (block and its ancestors committed)          |
//	                                                     |
//	 view expires at any point -> new-view share,        |
//	 next view entered on the timeout certificate  <-----+
//
// Every input funnels through a single receive routine: proposals, votes,
// new-view shares and certificates from peers, the node's own signed
// messages, and the pacemaker's timeouts. The Aggregator turns quorums of
// threshold signature shares into certificates; the BlockExecutor applies
// and commits blocks; the checkpoint Assembler cuts checkpoint certificates
// from the committed chain; the Interpreter, outside this package, judges
// block bodies.
//
// The Reactor is the network face of the Engine: it broadcasts the engine's
// own messages to peers and feeds decoded peer messages back into it. It
// never interprets consensus semantics.
package consensus
