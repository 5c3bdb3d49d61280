package types

import (
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// QuorumCert proves that at least 2f+1 distinct validators voted for
// BlockHash in the given phase and view. AggSignature is the recovered
// federation threshold signature over QuorumSignBytes; it cannot exist unless
// a quorum of valid shares was observed, so the certificate verifies against
// the federation public key alone. Signers records which shares went in, for
// audit. A QuorumCert is immutable once formed and embeddable in a later
// block's Justify.
type QuorumCert struct {
	BlockHash    tmbytes.HexBytes `json:"block_hash"`
	Phase        Phase            `json:"phase"`
	View         int64            `json:"view"`
	Signers      []int32          `json:"signers"`
	AggSignature tmbytes.HexBytes `json:"agg_signature"`
}

func (qc *QuorumCert) ValidateBasic() error {
	if qc == nil {
		return errors.New("nil quorum cert")
	}
	if len(qc.BlockHash) == 0 {
		return errors.New("quorum cert has no block hash")
	}
	if !qc.Phase.IsVotePhase() {
		return fmt.Errorf("quorum cert for non-vote phase %v", qc.Phase)
	}
	if qc.View < 0 {
		return fmt.Errorf("quorum cert has negative view %d", qc.View)
	}
	if len(qc.AggSignature) == 0 {
		return errors.New("quorum cert has no aggregated signature")
	}
	seen := make(map[int32]struct{}, len(qc.Signers))
	for _, idx := range qc.Signers {
		if _, dup := seen[idx]; dup {
			return fmt.Errorf("duplicate signer index %d", idx)
		}
		seen[idx] = struct{}{}
	}
	return nil
}

// Verify checks the certificate against the federation: at least 2f+1
// distinct signers, and the aggregated signature valid for BlockHash‖phase‖view
// under the federation public key.
func (qc *QuorumCert) Verify(chainID string, vals *ValidatorSet) error {
	if err := qc.ValidateBasic(); err != nil {
		return err
	}
	if len(qc.Signers) < vals.Quorum() {
		return ErrNotEnoughVoters{Got: len(qc.Signers), Needed: vals.Quorum()}
	}
	for _, idx := range qc.Signers {
		if int(idx) >= vals.Size() || idx < 0 {
			return fmt.Errorf("signer index %d outside validator set of size %d", idx, vals.Size())
		}
	}
	master, err := vals.FederationKey()
	if err != nil {
		return err
	}
	msg := QuorumSignBytes(chainID, qc.BlockHash, qc.Phase, qc.View)
	if !master.VerifySignature(msg, qc.AggSignature) {
		return errors.New("quorum cert aggregated signature does not verify")
	}
	return nil
}

// ForBlock reports whether the certificate certifies the given block.
func (qc *QuorumCert) ForBlock(block *Block) bool {
	if qc == nil || block == nil {
		return false
	}
	return block.HashesTo(qc.BlockHash)
}

func (qc *QuorumCert) Copy() *QuorumCert {
	if qc == nil {
		return nil
	}
	cp := *qc
	cp.Signers = append([]int32(nil), qc.Signers...)
	return &cp
}

// signedBytesDigest folds the certificate into a parent hash computation.
// Nil (genesis) hashes to a fixed empty digest.
func (qc *QuorumCert) signedBytesDigest() []byte {
	if qc == nil {
		return tmhash.Sum([]byte{})
	}
	bz := QuorumSignBytes("", qc.BlockHash, qc.Phase, qc.View)
	bz = append(bz, qc.AggSignature...)
	return tmhash.Sum(bz)
}

func (qc *QuorumCert) String() string {
	if qc == nil {
		return "nil-QC"
	}
	return fmt.Sprintf("QC{%v/%v %X signers=%v}", qc.View, qc.Phase, tmbytes.Fingerprint(qc.BlockHash), qc.Signers)
}

// ErrNotEnoughVoters is returned when a certificate carries fewer signers
// than the quorum size.
type ErrNotEnoughVoters struct {
	Got    int
	Needed int
}

func (e ErrNotEnoughVoters) Error() string {
	return fmt.Sprintf("invalid certificate -- insufficient signers: got %d, needed %d", e.Got, e.Needed)
}
