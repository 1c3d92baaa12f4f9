package index

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

const codecVersion = 1

type envelope struct {
	Format   int       `json:"format"`
	Snapshot *Snapshot `json:"snapshot"`
}

// Encode serializes a snapshot for an artifact store.
func Encode(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, errors.New("encode nil snapshot")
	}
	data, err := json.Marshal(envelope{Format: codecVersion, Snapshot: s})
	if err != nil {
		return nil, errors.Wrap(err, "encode snapshot")
	}
	return data, nil
}

// Decode restores a snapshot produced by Encode.
func Decode(data []byte) (*Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	if env.Format != codecVersion {
		return nil, errors.Newf("unsupported snapshot format %d", env.Format)
	}
	if env.Snapshot == nil {
		return nil, errors.New("decode snapshot: empty payload")
	}
	s := env.Snapshot
	if s.Text == nil {
		s.Text = map[string][]int64{}
	}
	if s.Prefixes == nil {
		s.Prefixes = map[string][]int64{}
	}
	if s.WordIDF == nil {
		s.WordIDF = map[string]float64{}
	}
	s.reindex()
	return s, nil
}
