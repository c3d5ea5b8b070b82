// Package pebbledb implements db.Database on top of cockroachdb/pebble, an
// embedded LSM key-value store. This is the durable backend for the journal
// sink: TRANSACTION_PREPARE_SEND records survive a process crash here.
package pebbledb

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/cockroachdb/pebble"

	"github.com/Hawthorne001/execution-coordinator/db"
)

// WriteTx implements db.WriteTx over a pebble indexed batch.
type WriteTx struct {
	batch *pebble.Batch
}

var _ db.WriteTx = (*WriteTx)(nil)

func get(reader pebble.Reader, k []byte) ([]byte, error) {
	defer handleClosedDBPanic()
	v, closer, err := reader.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	// The returned slice is only valid until Close; copy it out.
	v2 := bytes.Clone(v)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return v2, nil
}

func iterate(reader pebble.Reader, prefix []byte, callback func(k, v []byte) bool) (err error) {
	defer handleClosedDBPanic()
	iter, err := reader.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer func() {
		errC := iter.Close()
		if err == nil {
			err = errC
		}
	}()

	for iter.First(); iter.Valid(); iter.Next() {
		localKey := iter.Key()[len(prefix):]
		if cont := callback(localKey, iter.Value()); !cont {
			break
		}
	}
	return iter.Error()
}

func (tx *WriteTx) Get(k []byte) ([]byte, error) { return get(tx.batch, k) }

func (tx *WriteTx) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	return iterate(tx.batch, prefix, callback)
}

func (tx *WriteTx) Set(k, v []byte) error {
	defer handleClosedDBPanic()
	return tx.batch.Set(k, v, nil)
}

func (tx *WriteTx) Delete(k []byte) error {
	defer handleClosedDBPanic()
	return tx.batch.Delete(k, nil)
}

func (tx *WriteTx) Apply(other db.WriteTx) error {
	defer handleClosedDBPanic()
	otherPebble, ok := other.(*WriteTx)
	if !ok {
		return fmt.Errorf("pebbledb: cannot apply a write tx from a different backend")
	}
	return tx.batch.Apply(otherPebble.batch, nil)
}

func (tx *WriteTx) Commit() error {
	defer handleClosedDBPanic()
	if tx.batch == nil {
		return fmt.Errorf("cannot commit pebble tx: already committed or discarded")
	}
	err := tx.batch.Commit(pebble.Sync)
	tx.batch = nil
	return err
}

func (tx *WriteTx) Discard() {
	if tx.batch == nil {
		return
	}
	_ = tx.batch.Close()
	tx.batch = nil
}

// PebbleDB implements db.Database.
type PebbleDB struct {
	db *pebble.DB
}

var _ db.Database = (*PebbleDB)(nil)

// New opens (creating if necessary) a PebbleDB at opts.Path.
func New(opts db.Options) (*PebbleDB, error) {
	if err := os.MkdirAll(opts.Path, os.ModePerm); err != nil {
		return nil, err
	}
	o := &pebble.Options{
		Levels: []pebble.LevelOptions{{Compression: pebble.SnappyCompression}},
	}
	pdb, err := pebble.Open(opts.Path, o)
	if err != nil {
		return nil, err
	}
	return &PebbleDB{db: pdb}, nil
}

func (d *PebbleDB) Get(k []byte) ([]byte, error) { return get(d.db, k) }

func (d *PebbleDB) WriteTx() db.WriteTx {
	return &WriteTx{batch: d.db.NewIndexedBatch()}
}

func (d *PebbleDB) Close() error {
	defer handleClosedDBPanic()
	return d.db.Close()
}

func keyUpperBound(b []byte) []byte {
	end := bytes.Clone(b)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (d *PebbleDB) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	return iterate(d.db, prefix, callback)
}

func (d *PebbleDB) Compact() error {
	defer handleClosedDBPanic()
	iter, err := d.db.NewIter(nil)
	if err != nil {
		return err
	}
	var first, last []byte
	if iter.First() {
		first = append(first, iter.Key()...)
	}
	if iter.Last() {
		last = append(last, iter.Key()...)
	}
	if err := iter.Close(); err != nil {
		return err
	}
	return d.db.Compact(first, last, true)
}

// handleClosedDBPanic swallows the panic pebble raises when an operation
// races a Close, since callers here treat "closed" as a benign shutdown
// race rather than a bug worth crashing on.
func handleClosedDBPanic() {
	if r := recover(); r != nil {
		if strings.Contains(fmt.Sprintf("%v", r), "closed") {
			return
		}
		stack := make([]byte, 0)
		for i := range 32 {
			pc, file, line, ok := runtime.Caller(i)
			if !ok {
				break
			}
			fn := runtime.FuncForPC(pc)
			name := ""
			if fn != nil {
				name = fn.Name()
			}
			stack = append(stack, []byte(fmt.Sprintf("%s\n\t%s:%d\n", name, file, line))...)
		}
		panic(fmt.Sprintf("panic during storage operation: %v: %s", r, stack))
	}
}
