// Package sstable implements the on-disk sorted-string-table source
// iterator: a flushed, immutable snapshot of internal key/value records
// written once, opened for repeated reads. The on-disk layout intentionally
// stays simple — a flat sequence of length-prefixed records, no block index
// or compression — since the block/table format itself sits outside this
// layer's scope; what matters here is that an SSTable satisfies the same
// source iterator contract a memtable does, so the merge layer cannot tell
// them apart.
package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"sync/atomic"

	"github.com/ncw/directio"

	"hummock/internal/base"
	"hummock/internal/compare"
	"hummock/pkg/iterator"
	"hummock/pkg/storage"
)

// footerLen is the width, in bytes, of the trailing big-endian length
// recording how many bytes of real record data precede the O_DIRECT
// block-alignment padding that New places before the footer.
const footerLen = 8

// SSTable is an immutable, flushed table of internal key/value records
// backed by a single O_DIRECT file.
type SSTable struct {
	latch    atomic.Int32
	id       uint64
	filename string
	file     *os.File
	level    uint64
	size     int64
	dataLen  int64
}

// New flushes records — which must already be sorted in ascending internal
// key order — to filename and opens the result. records is typically a
// memtable's forward iterator drained to completion.
//
// The records are padded so that records, padding and footer fill whole
// O_DIRECT blocks, and the file is written through a storage.Writer; the
// footer occupies the file's last footerLen bytes and records the real data
// length so a reader can ignore the padding. The table is then reopened
// read-only via Open.
func New(filename string, id, level uint64, records []base.InternalKV) (*SSTable, error) {
	var buf bytes.Buffer
	for _, kv := range records {
		if err := writeRecord(&buf, kv); err != nil {
			return nil, fmt.Errorf("sstable: encode %s: %w", filename, err)
		}
	}

	dataLen := buf.Len()
	if rem := (dataLen + footerLen) % directio.BlockSize; rem != 0 {
		buf.Write(make([]byte, directio.BlockSize-rem))
	}
	var footer [footerLen]byte
	binary.BigEndian.PutUint64(footer[:], uint64(dataLen))
	buf.Write(footer[:])

	w, err := storage.NewWriter(filename, os.O_CREATE|os.O_RDWR|os.O_TRUNC)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", filename, err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("sstable: write %s: %w", filename, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("sstable: close %s: %w", filename, err)
	}

	return Open(filename, id, level)
}

// Open reopens a previously flushed SSTable file for reading.
func Open(filename string, id, level uint64) (*SSTable, error) {
	file, err := directio.OpenFile(filename, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", filename, err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("sstable: stat %s: %w", filename, err)
	}

	size := stat.Size()
	var footer [footerLen]byte
	if size >= footerLen {
		if _, err := file.ReadAt(footer[:], size-footerLen); err != nil {
			file.Close()
			return nil, fmt.Errorf("sstable: read footer %s: %w", filename, err)
		}
	}
	dataLen := int64(binary.BigEndian.Uint64(footer[:]))

	return &SSTable{
		id:       id,
		filename: filename,
		file:     file,
		level:    level,
		size:     size,
		dataLen:  dataLen,
	}, nil
}

func (s *SSTable) ID() uint64      { return s.id }
func (s *SSTable) Level() uint64   { return s.level }
func (s *SSTable) Size() int64     { return s.size }
func (s *SSTable) Filename() string { return s.filename }

// NewIter reads the whole table into memory and returns a source iterator
// over it in the requested internal-key direction. records are assumed
// already sorted ascending on disk; NewIter sorts defensively so direction
// selection never depends on write-time ordering.
func (s *SSTable) NewIter(dir compare.Direction) (iterator.SourceIterator, error) {
	// Count this reader in latch; the count drops again when the returned
	// iterator is closed. Nothing in this module reads the count.
	s.latch.Add(1)

	kvs, err := s.readAll()
	if err != nil {
		s.latch.Add(-1)
		return nil, err
	}
	return newTableIterator(kvs, dir, func() { s.latch.Add(-1) }), nil
}

func (s *SSTable) readAll() ([]base.InternalKV, error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r := bufio.NewReaderSize(io.LimitReader(s.file, s.dataLen), directio.BlockSize)

	var kvs []base.InternalKV
	for {
		kv, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sstable: read %s: %w", s.filename, err)
		}
		kvs = append(kvs, kv)
	}
	sort.Slice(kvs, func(i, j int) bool {
		return compare.DefaultCompare(kvs[i].Key.Encode(), kvs[j].Key.Encode()) < 0
	})
	return kvs, nil
}

// Close closes the backing file. It does not wait for outstanding readers;
// callers must drain iterators (tracked via the latch) before reclaiming
// the file on disk.
func (s *SSTable) Close() error {
	return s.file.Close()
}

func writeRecord(w io.Writer, kv base.InternalKV) error {
	ik := kv.Key.Encode()
	if err := writeUvarintBytes(w, ik); err != nil {
		return err
	}
	tag := byte(0)
	if kv.Value.IsDelete() {
		tag = 1
	}
	if _, err := w.Write([]byte{tag}); err != nil {
		return err
	}
	return writeUvarintBytes(w, kv.Value.Payload)
}

func readRecord(r io.Reader) (base.InternalKV, error) {
	ik, err := readUvarintBytes(r)
	if err != nil {
		return base.InternalKV{}, err
	}
	var tagBuf [1]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return base.InternalKV{}, err
	}
	payload, err := readUvarintBytes(r)
	if err != nil {
		return base.InternalKV{}, err
	}

	val := base.PutValue(payload)
	if tagBuf[0] == 1 {
		val = base.DeleteValue()
	}
	return base.InternalKV{
		Key:   base.InternalKey{UserKey: base.UserKey(ik), Epoch: base.DecodeEpoch(ik)},
		Value: val,
	}, nil
}

func writeUvarintBytes(w io.Writer, b []byte) error {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readUvarintBytes(r io.Reader) ([]byte, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		return nil, fmt.Errorf("sstable: reader does not support ReadByte")
	}
	n, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
