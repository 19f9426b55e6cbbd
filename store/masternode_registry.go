package store

import (
	"github.com/timecoin/timecoind/chain"
)

// MasternodeRegistry persists masternode profiles in the masternodes
// keyspace, keyed by address. This is the durable counterpart to the
// registry snapshots leader.ComputeTicket and leader.VerifyElection take
// as leader.Candidate values: whatever builds those candidates reads them
// from here.
type MasternodeRegistry interface {
	Put(p *chain.MasternodeProfile) error
	Get(address string) (*chain.MasternodeProfile, error)
	Delete(address string) error
	List() ([]*chain.MasternodeProfile, error)
}

// MasternodeRegistry returns a MasternodeRegistry view over the database.
func (db *DB) MasternodeRegistry() MasternodeRegistry {
	return &masternodeRegistry{kv: db.Masternodes()}
}

type masternodeRegistry struct {
	kv KeyValueStore
}

func (r *masternodeRegistry) Put(p *chain.MasternodeProfile) error {
	enc, err := chain.EncodeMasternodeProfile(p)
	if err != nil {
		return err
	}
	return r.kv.Put([]byte(p.Address), enc)
}

func (r *masternodeRegistry) Get(address string) (*chain.MasternodeProfile, error) {
	raw, err := r.kv.Get([]byte(address))
	if err != nil {
		return nil, err
	}
	return chain.DecodeMasternodeProfile(raw)
}

func (r *masternodeRegistry) Delete(address string) error {
	return r.kv.Delete([]byte(address))
}

func (r *masternodeRegistry) List() ([]*chain.MasternodeProfile, error) {
	iter, err := r.kv.Iterate(nil)
	if err != nil {
		return nil, err
	}
	defer iter.Release()

	var profiles []*chain.MasternodeProfile
	for iter.Next() {
		value := append([]byte(nil), iter.Value()...)
		p, err := chain.DecodeMasternodeProfile(value)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, iter.Error()
}
