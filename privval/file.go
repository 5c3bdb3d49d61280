package privval

import (
	"fmt"
	"io/ioutil"

	"github.com/tendermint/tendermint/crypto"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/tempfile"

	"checkpointbft/crypto/bls"
	"checkpointbft/crypto/threshold"
	"checkpointbft/types"
)

//-------------------------------------------------------------------------------

// FilePVKey is the on-disk identity of a federation member: its threshold
// key share and its index in the federation ordering. The index is part of
// the key material, not a preference: shares only aggregate when each one is
// used at the position it was dealt for.
type FilePVKey struct {
	Address types.Address `json:"address"`
	PubKey  crypto.PubKey `json:"pub_key"`
	PrivKey bls.PrivKey   `json:"priv_key"`
	Index   int32         `json:"index"`

	filePath string
}

// Save persists the FilePVKey to its filePath.
func (pvKey FilePVKey) Save() {
	outFile := pvKey.filePath
	if outFile == "" {
		panic("cannot save private validator key: filePath not set")
	}

	jsonBytes, err := tmjson.MarshalIndent(pvKey, "", "  ")
	if err != nil {
		panic(err)
	}
	if err := tempfile.WriteFileAtomic(outFile, jsonBytes, 0600); err != nil {
		panic(err)
	}
}

//-------------------------------------------------------------------------------

// FilePV implements PrivValidator with a key share persisted to disk.
// NOTE: the directory containing pv.Key.filePath must already exist.
type FilePV struct {
	Key FilePVKey
}

var _ types.PrivValidator = (*FilePV)(nil)

// NewFilePV wraps the given key share and federation index.
func NewFilePV(privKey bls.PrivKey, index int32, keyFilePath string) *FilePV {
	return &FilePV{
		Key: FilePVKey{
			Address:  types.Address(privKey.PubKey().Address()),
			PubKey:   privKey.PubKey(),
			PrivKey:  privKey,
			Index:    index,
			filePath: keyFilePath,
		},
	}
}

// GenFilePV deals the whole federation's polynomial from the seed and keeps
// the share at the given index. Every member generating with the same seed
// and quorum gets a share of the same federation key; the dealer normally
// runs this once per member and distributes key files.
func GenFilePV(keyFilePath string, quorum int, index int32, seed int64) *FilePV {
	primary := bls.GenPrivKeyWithSeed(seed)
	poly := threshold.Master(primary, quorum, seed)

	priv, err := poly.GetValue(int64(index))
	if err != nil {
		panic(err)
	}
	return NewFilePV(priv, index, keyFilePath)
}

// LoadFilePV loads a FilePV from the key file. The program exits when the
// file is missing or malformed.
func LoadFilePV(keyFilePath string) *FilePV {
	keyJSONBytes, err := ioutil.ReadFile(keyFilePath)
	if err != nil {
		tmos.Exit(err.Error())
	}
	pvKey := FilePVKey{}
	if err := tmjson.Unmarshal(keyJSONBytes, &pvKey); err != nil {
		tmos.Exit(fmt.Sprintf("error reading private validator key from %v: %v\n", keyFilePath, err))
	}

	// the derived fields win over whatever the file claims
	pvKey.PubKey = pvKey.PrivKey.PubKey()
	pvKey.Address = types.Address(pvKey.PubKey.Address())
	pvKey.filePath = keyFilePath

	return &FilePV{Key: pvKey}
}

// LoadOrGenFilePV loads the key file when it exists, otherwise deals a fresh
// share from the seed and saves it.
func LoadOrGenFilePV(keyFilePath string, quorum int, index int32, seed int64) *FilePV {
	if tmos.FileExists(keyFilePath) {
		return LoadFilePV(keyFilePath)
	}
	pv := GenFilePV(keyFilePath, quorum, index, seed)
	pv.Save()
	return pv
}

// GetAddress implements PrivValidator.
func (pv *FilePV) GetAddress() types.Address {
	return pv.Key.Address
}

// GetPubKey implements PrivValidator.
func (pv *FilePV) GetPubKey() (crypto.PubKey, error) {
	return pv.Key.PubKey, nil
}

// GetIndex implements PrivValidator.
func (pv *FilePV) GetIndex() int32 {
	return pv.Key.Index
}

// SignVote signs the vote as a threshold share at this member's index.
// Implements PrivValidator.
func (pv *FilePV) SignVote(chainID string, vote *types.Vote) error {
	sig, err := threshold.SignShare(pv.Key.PrivKey, int(pv.Key.Index), types.VoteSignBytes(chainID, vote))
	if err != nil {
		return fmt.Errorf("error signing vote: %w", err)
	}
	vote.Signature = sig
	return nil
}

// SignProposal signs the proposal with the member's plain key: proposals are
// attributed to one leader, never aggregated. Implements PrivValidator.
func (pv *FilePV) SignProposal(chainID string, proposal *types.Proposal) error {
	sig, err := pv.Key.PrivKey.Sign(types.ProposalSignBytes(chainID, proposal))
	if err != nil {
		return fmt.Errorf("error signing proposal: %w", err)
	}
	proposal.Block.Signature = sig
	return nil
}

// SignNewView signs the view abandonment as a threshold share. Implements
// PrivValidator.
func (pv *FilePV) SignNewView(chainID string, newView *types.NewView) error {
	sig, err := threshold.SignShare(pv.Key.PrivKey, int(pv.Key.Index), types.NewViewSignBytes(chainID, newView.View))
	if err != nil {
		return fmt.Errorf("error signing new-view: %w", err)
	}
	newView.Signature = sig
	return nil
}

// Save persists the FilePV to disk.
func (pv *FilePV) Save() {
	pv.Key.Save()
}

// String returns a string representation of the FilePV.
func (pv *FilePV) String() string {
	return fmt.Sprintf("PrivValidator{#%d %v}", pv.Key.Index, pv.GetAddress())
}
