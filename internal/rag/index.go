package rag

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

var (
	passagesBucket = []byte("passages")
	metaBucket     = []byte("meta")

	metaModel     = []byte("model")
	metaDimension = []byte("dimension")
	metaBuiltAt   = []byte("built_at")
)

// IndexInfo describes how an index was built.
type IndexInfo struct {
	Model     string
	Dimension int
	BuiltAt   time.Time
}

// PassageIndex is a bbolt file of embedded passages, written by the populate
// tool and read at server start.
type PassageIndex struct {
	db *bbolt.DB
}

func OpenIndex(path string, readOnly bool) (*PassageIndex, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("open passage index %s: %w", path, err)
	}
	return &PassageIndex{db: db}, nil
}

func (idx *PassageIndex) Close() error {
	return idx.db.Close()
}

// Replace rewrites the index with passages, preserving their order.
func (idx *PassageIndex) Replace(passages []Passage, model string) error {
	return idx.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{passagesBucket, metaBucket} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
			}
		}

		pb, err := tx.CreateBucket(passagesBucket)
		if err != nil {
			return err
		}
		dim := 0
		for i, p := range passages {
			if dim == 0 {
				dim = len(p.Embedding)
			} else if len(p.Embedding) != dim {
				return fmt.Errorf("passage %d: dimension %d, want %d", i, len(p.Embedding), dim)
			}
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if err := pb.Put(seqKey(uint64(i)), data); err != nil {
				return err
			}
		}

		mb, err := tx.CreateBucket(metaBucket)
		if err != nil {
			return err
		}
		if err := mb.Put(metaModel, []byte(model)); err != nil {
			return err
		}
		if err := mb.Put(metaDimension, []byte(strconv.Itoa(dim))); err != nil {
			return err
		}
		return mb.Put(metaBuiltAt, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// Load returns all passages in insertion order. A missing bucket reads as empty.
func (idx *PassageIndex) Load() ([]Passage, IndexInfo, error) {
	var (
		passages []Passage
		info     IndexInfo
	)
	err := idx.db.View(func(tx *bbolt.Tx) error {
		if mb := tx.Bucket(metaBucket); mb != nil {
			info.Model = string(mb.Get(metaModel))
			info.Dimension, _ = strconv.Atoi(string(mb.Get(metaDimension)))
			info.BuiltAt, _ = time.Parse(time.RFC3339, string(mb.Get(metaBuiltAt)))
		}

		pb := tx.Bucket(passagesBucket)
		if pb == nil {
			return nil
		}
		passages = make([]Passage, 0, pb.Stats().KeyN)
		return pb.ForEach(func(k, v []byte) error {
			var p Passage
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode passage %x: %w", k, err)
			}
			passages = append(passages, p)
			return nil
		})
	})
	if err != nil {
		return nil, IndexInfo{}, err
	}
	return passages, info, nil
}

func seqKey(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}
