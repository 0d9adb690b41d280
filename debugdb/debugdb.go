// Package debugdb is a buntdb-backed, in-memory, ephemeral index of the
// current object set, refreshed on demand from Manager.Snapshot. Purely
// a debug aid: objstore's own map is always the source of truth, and
// nothing here is persisted to disk.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package debugdb

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"

	"github.com/plasmacore/plasmacore/objstore"
)

const collection = "objects"

// Index is a queryable, point-in-time export of a Store's Records.
// Every Refresh call discards the previous contents and repopulates
// from scratch - there is no incremental sync, because the store never
// hands out a change feed. The caller is expected to Refresh right
// before querying.
type Index struct {
	db *buntdb.DB
}

// New opens an in-memory BuntDB instance and registers the "by state"
// index the CLI's inspect command queries (WHERE state = sealed/created).
func New() (*Index, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "debugdb: failed to open in-memory index")
	}
	if err := db.CreateIndex("by_state", collection+":*", buntdb.IndexJSON("state")); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "debugdb: failed to create state index")
	}
	return &Index{db: db}, nil
}

func (idx *Index) Close() error { return idx.db.Close() }

// Refresh replaces the index's contents with recs.
func (idx *Index) Refresh(recs []objstore.Record) error {
	return idx.db.Update(func(tx *buntdb.Tx) error {
		if err := tx.DeleteAll(); err != nil {
			return err
		}
		for _, r := range recs {
			b, err := json.Marshal(r)
			if err != nil {
				return err
			}
			key := fmt.Sprintf("%s:%s", collection, r.ObjectID)
			if _, _, err := tx.Set(key, string(b), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// ByState returns every Record whose state matches want ("created" or
// "sealed"), using the by_state index so the lookup stays O(matches)
// rather than a full scan.
func (idx *Index) ByState(want string) ([]objstore.Record, error) {
	var out []objstore.Record
	err := idx.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendEqual("by_state", fmt.Sprintf(`{"state":%q}`, want), func(key, value string) bool {
			var r objstore.Record
			if err := json.Unmarshal([]byte(value), &r); err == nil {
				out = append(out, r)
			}
			return true
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "debugdb: query by state failed")
	}
	return out, nil
}
