package db

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"hummock/internal/arch"
	"hummock/internal/base"
	"hummock/internal/compare"
	"hummock/pkg/lsm"
	"hummock/pkg/manifest"
	"hummock/pkg/memtable"
	"hummock/pkg/sstable"
	"hummock/pkg/useriter"
	"hummock/pkg/wal"
)

const (
	DataDirectoryName = "data"
	WalDirectoryName  = "wal"
	ManifestFileName  = "MANIFEST"
	WalFileName       = "current.log"

	defaultMemtableSize = 64 << 20
)

// DB is the top-level handle on a single-node Hummock keyspace: one mutable
// memtable accepting writes, zero or more immutable memtables awaiting
// flush, a set of on-disk SSTables, and the manifest and WAL that make that
// state durable across restarts.
type DB struct {
	// mu serializes memtable rotation and Close. It is not held across reads
	// or single-key writes, only while a full memtable is being swapped out
	// or the DB is being closed.
	mu sync.Mutex

	directory    string
	openedAt     time.Time
	memtableSize uint

	// epoch is the monotonically increasing write version counter. Every
	// write is assigned the next epoch, so two writes never share a
	// version and a reader's snapshot is just the epoch loaded when its
	// iterator is created (Get, NewIterator, NewReverseIterator).
	epoch arch.AtomicUint

	lsm      *lsm.LSM
	wal      *wal.WAL
	manifest *manifest.Manifest

	lockFile      *os.File
	dataDirectory *os.File
	walDirectory  *os.File
}

// Open opens the database in read-write mode. If the database directory does
// not exist or is empty, a new database is created. If the database
// directory exists, a lock file is acquired and the persisted database is
// reopened from its manifest.
func Open(directory string, options ...Option) (db *DB, err error) {
	dataDirectoryPath := filepath.Join(directory, DataDirectoryName)
	walDirectoryPath := filepath.Join(directory, WalDirectoryName)

	if err = os.MkdirAll(dataDirectoryPath, 0755); err != nil {
		return nil, fmt.Errorf("db: create data directory: %w", err)
	}
	if err = os.MkdirAll(walDirectoryPath, 0755); err != nil {
		return nil, fmt.Errorf("db: create wal directory: %w", err)
	}

	lockFile, err := os.OpenFile(filepath.Join(directory, "db.lock"), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("db: create lock file: %w", err)
	}
	defer func() {
		if db == nil {
			_ = lockFile.Close()
		}
	}()
	if err = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return nil, fmt.Errorf("db: lock directory: %w", err)
	}

	dataDirectory, err := os.OpenFile(dataDirectoryPath, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("db: open data directory: %w", err)
	}
	defer func() {
		if db == nil {
			_ = dataDirectory.Close()
		}
	}()
	walDirectory, err := os.OpenFile(walDirectoryPath, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("db: open wal directory: %w", err)
	}
	defer func() {
		if db == nil {
			_ = walDirectory.Close()
		}
	}()

	m, err := manifest.Open(filepath.Join(directory, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("db: open manifest: %w", err)
	}

	log, err := wal.New(filepath.Join(walDirectoryPath, WalFileName))
	if err != nil {
		return nil, fmt.Errorf("db: open wal: %w", err)
	}

	db = &DB{
		directory:     directory,
		openedAt:      time.Now(),
		memtableSize:  defaultMemtableSize,
		wal:           log,
		manifest:      m,
		lockFile:      lockFile,
		dataDirectory: dataDirectory,
		walDirectory:  walDirectory,
	}
	db.epoch.Store(arch.UintToArchSize(uint(m.Epoch())))

	// Attempt to close resources on panic during open, rather than leaking
	// the directory lock.
	defer func() {
		if r := recover(); r != nil {
			_ = db.Close()
			panic(r)
		}
	}()

	for _, opt := range options {
		opt.apply(db)
	}

	active := memtable.New(db.memtableSize, base.Epoch(db.epoch.Load()), db.flushMemtable)
	db.lsm = lsm.New(active)

	for _, f := range m.Files() {
		t, err := sstable.Open(filepath.Join(dataDirectoryPath, f.Filename), f.ID, f.Level)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db: reopen sstable %d: %w", f.ID, err)
		}
		db.lsm.AddSSTable(t)
	}

	return db, nil
}

// OpenReadOnly opens the database in read-only mode to perform read
// operations on a persisted database. Any operation that writes data or
// mutates database state will return an error. This maintains a directory
// file-lock on the database directory until the database is closed.
func OpenReadOnly(directory string, options ...Option) (db *DB, err error) {
	panic("not implemented")
}

// OpenAndCleanup opens the database in read-write mode to clean up logs,
// compact the database, and remove obsolete entries in the manifest. Once
// the cleanup operations complete, this function returns a nil error, the
// database is closed, and the directory file-lock is released.
func OpenAndCleanup(directory string, options ...Option) (err error) {
	panic("not implemented")
}

// Close persists the current epoch to the manifest, then closes the WAL, the
// data and WAL directories and the lock file, releasing the directory lock.
// It waits for an in-progress memtable rotation, but not for background
// memtable flushes that are still running.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var errs []error
	if db.manifest != nil {
		if err := db.manifest.SetEpoch(base.Epoch(db.epoch.Load())); err != nil {
			errs = append(errs, fmt.Errorf("persist epoch: %w", err))
		}
	}
	if db.wal != nil {
		if err := db.wal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close wal: %w", err))
		}
	}
	if db.dataDirectory != nil {
		if err := db.dataDirectory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close data directory: %w", err))
		}
	}
	if db.walDirectory != nil {
		if err := db.walDirectory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close wal directory: %w", err))
		}
	}
	if db.lockFile != nil {
		if err := syscall.Flock(int(db.lockFile.Fd()), syscall.LOCK_UN); err != nil {
			errs = append(errs, fmt.Errorf("unlock directory: %w", err))
		}
		if err := db.lockFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close lock file: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("db: close: %w", errors.Join(errs...))
	}
	return nil
}

// Get returns the newest visible value for key as of the current epoch, or
// ErrKeyNotFound if no live version exists.
func (db *DB) Get(key []byte) (value []byte, err error) {
	ctx := context.Background()
	readEpoch := base.Epoch(db.epoch.Load())

	it, err := db.lsm.NewIterator(useriter.KeyRange{
		Lower: useriter.Bound{Kind: useriter.Included, Key: key},
		Upper: useriter.Bound{Kind: useriter.Included, Key: key},
	}, readEpoch)
	if err != nil {
		return nil, fmt.Errorf("db: get %q: %w", key, err)
	}
	defer it.Close()

	if err := it.Seek(ctx, key); err != nil {
		return nil, fmt.Errorf("db: get %q: %w", key, err)
	}
	if !it.IsValid() {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(it.Value()))
	copy(out, it.Value())
	return out, nil
}

// Set sets the value for the given key, overwriting any previous value for
// that key if it exists.
func (db *DB) Set(key, value []byte) error {
	return db.apply(key, base.PutValue(value))
}

// Delete deletes the value for the given key. It is a blind delete: it does
// not return an error if the key does not already exist.
func (db *DB) Delete(key []byte) error {
	return db.apply(key, base.DeleteValue())
}

// NewIterator returns a forward range scan over the database as of the
// current epoch.
func (db *DB) NewIterator(keyRange useriter.KeyRange) (useriter.Iterator, error) {
	return db.lsm.NewIterator(keyRange, base.Epoch(db.epoch.Load()))
}

// NewReverseIterator returns a reverse range scan over the database as of
// the current epoch.
func (db *DB) NewReverseIterator(keyRange useriter.KeyRange) (useriter.Iterator, error) {
	return db.lsm.NewReverseIterator(keyRange, base.Epoch(db.epoch.Load()))
}

// apply writes value under a freshly allocated epoch, retrying against a
// fresh memtable whenever the active one is flushed out from under it and
// bumping the epoch whenever a concurrent writer raced it to the same one.
func (db *DB) apply(key []byte, value base.Value) error {
	for {
		epoch := base.Epoch(db.epoch.Add(arch.UintToArchSize(1)))
		kv := base.InternalKV{Key: base.InternalKey{UserKey: key, Epoch: epoch}, Value: value}

		if _, err := db.wal.Write(encodeWALRecord(kv)); err != nil {
			return fmt.Errorf("db: wal write: %w", err)
		}

		active := db.lsm.Active()
		err := active.Set(kv)
		if err == nil {
			return nil
		}
		if errors.Is(err, memtable.ErrMemtableFlushed) {
			db.rotateMemtable(active)
			continue
		}
		if errors.Is(err, memtable.ErrRecordExists) {
			// Another writer landed the same epoch first; retry with a new
			// one.
			continue
		}
		return fmt.Errorf("db: apply: %w", err)
	}
}

// rotateMemtable installs a fresh active memtable once full has stopped
// accepting writes. A no-op if another writer already won the race.
func (db *DB) rotateMemtable(full *memtable.MemTable) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.lsm.Active() != full {
		return
	}
	next := memtable.New(db.memtableSize, base.Epoch(db.epoch.Load()), db.flushMemtable)
	db.lsm.RotateMemtable(next)
}

// flushMemtable drains a retired memtable to a new SSTable, registers it in
// the manifest and the LSM's source set, and signals flushed when it
// finishes, whether or not those steps succeeded; on failure the memtable
// stays in the LSM's source set.
// It runs in its own goroutine so the caller (memtable.Flush) does not block
// the writer that triggered the flush.
func (db *DB) flushMemtable(m *memtable.MemTable, flushed *sync.WaitGroup) {
	go func() {
		defer flushed.Done()

		records, err := drainMemtable(m)
		if err != nil {
			// TODO: surface flush failures to the manifest as a degraded
			// state once compaction has somewhere to report them.
			return
		}
		if len(records) == 0 {
			db.lsm.DropMemtable(m)
			return
		}

		id, err := db.manifest.NextFileID()
		if err != nil {
			return
		}
		name := fmt.Sprintf("%06d.sst", id)
		table, err := sstable.New(filepath.Join(db.directory, DataDirectoryName, name), id, 0, records)
		if err != nil {
			return
		}
		if err := db.manifest.AddFile(manifest.FileMeta{ID: id, Level: 0, Filename: name}); err != nil {
			return
		}
		if err := db.manifest.SetEpoch(base.Epoch(db.epoch.Load())); err != nil {
			return
		}

		db.lsm.AddSSTable(table)
		db.lsm.DropMemtable(m)
	}()
}

// drainMemtable reads every record out of m's skiplist in ascending order,
// suitable for writing straight to an SSTable.
func drainMemtable(m *memtable.MemTable) ([]base.InternalKV, error) {
	ctx := context.Background()
	it := m.NewIter(compare.Forward)
	defer it.Close()

	if err := it.Rewind(ctx); err != nil {
		return nil, err
	}

	var records []base.InternalKV
	for it.IsValid() {
		ik := it.Key()
		records = append(records, base.InternalKV{
			Key:   base.InternalKey{UserKey: base.UserKey(ik), Epoch: base.DecodeEpoch(ik)},
			Value: it.Value(),
		})
		if err := it.Next(ctx); err != nil {
			return nil, err
		}
	}
	return records, it.Error()
}

// encodeWALRecord frames one internal key/value pair for the write-ahead
// log: a length-prefixed encoded internal key, a one-byte value kind tag,
// and a length-prefixed payload.
func encodeWALRecord(kv base.InternalKV) []byte {
	ik := kv.Key.Encode()
	buf := make([]byte, 0, 4+len(ik)+1+4+len(kv.Value.Payload))

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(ik)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, ik...)

	tag := byte(0)
	if kv.Value.IsDelete() {
		tag = 1
	}
	buf = append(buf, tag)

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kv.Value.Payload)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, kv.Value.Payload...)
	return buf
}
