// Package blocklog is the node's durable append-only record of every
// committed block, independent of pkg/store's queryable quad index: it is
// the source of truth replayed to rebuild the in-memory chain after a
// restart, and the payload pkg/wire ships to a peer that requests a range.
package blocklog

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"rdfchain/pkg/block"
)

var logger = log.New(log.Writer(), "[BlockLog] ", log.LstdFlags)

const lengthPrefixSize = 4

// Log is an append-only sequence of length-prefixed CBOR-encoded blocks
// backed by a single file. Appends are serialized by mu and fsynced
// before returning, so a crash never loses an acknowledged append.
type Log struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens path for appending, creating it if absent. If the file's
// last record was only partially written (e.g. the process crashed mid
// fsync), the truncated tail is discarded rather than treated as
// corruption: a torn trailing write must not block startup.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blocklog: open %s: %w", path, err)
	}

	validLen, err := scanValidLength(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if info, statErr := f.Stat(); statErr == nil && info.Size() != validLen {
		logger.Printf("truncating torn trailing record in %s: %d -> %d bytes", path, info.Size(), validLen)
		if err := f.Truncate(validLen); err != nil {
			f.Close()
			return nil, fmt.Errorf("blocklog: truncate torn tail: %w", err)
		}
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("blocklog: seek to end: %w", err)
	}

	return &Log{file: f}, nil
}

// scanValidLength walks every length-prefixed record from the start of f
// and returns the byte offset through the last fully-present record,
// which may be shorter than the file's actual size if the final record
// was cut off mid-write.
func scanValidLength(f *os.File) (int64, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("blocklog: seek to start: %w", err)
	}

	var offset int64
	var lenBuf [lengthPrefixSize]byte
	for {
		n, err := io.ReadFull(f, lenBuf[:])
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			break // torn length prefix itself
		}
		if err != nil {
			return 0, fmt.Errorf("blocklog: read length prefix: %w", err)
		}
		recLen := binary.BigEndian.Uint32(lenBuf[:])

		buf := make([]byte, recLen)
		n, err = io.ReadFull(f, buf)
		if err != nil {
			break // torn record body
		}
		offset += int64(lengthPrefixSize + n)
	}
	return offset, nil
}

// Append encodes b and writes it as one length-prefixed record, fsyncing
// before returning so a successful Append is durable.
func (l *Log) Append(b block.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	payload, err := cbor.Marshal(b)
	if err != nil {
		return fmt.Errorf("blocklog: encode block %d: %w", b.Index, err)
	}

	var lenBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	if _, err := l.file.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("blocklog: write length prefix for block %d: %w", b.Index, err)
	}
	if _, err := l.file.Write(payload); err != nil {
		return fmt.Errorf("blocklog: write body for block %d: %w", b.Index, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("blocklog: fsync after block %d: %w", b.Index, err)
	}
	return nil
}

// ReadAll replays every record from the start of the log, in append
// order, used to rebuild pkg/chain on startup.
func (l *Log) ReadAll() ([]block.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("blocklog: seek to start: %w", err)
	}
	defer l.file.Seek(0, io.SeekEnd)

	var blocks []block.Block
	var lenBuf [lengthPrefixSize]byte
	for {
		_, err := io.ReadFull(l.file, lenBuf[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("blocklog: read length prefix: %w", err)
		}
		recLen := binary.BigEndian.Uint32(lenBuf[:])

		buf := make([]byte, recLen)
		if _, err := io.ReadFull(l.file, buf); err != nil {
			return nil, fmt.Errorf("blocklog: read record body: %w", err)
		}

		var b block.Block
		if err := cbor.Unmarshal(buf, &b); err != nil {
			return nil, fmt.Errorf("blocklog: decode record: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// BlockAt returns the committed block at index, satisfying
// pkg/wire.BlockSource. It scans the log linearly on every call.
func (l *Log) BlockAt(index uint64) (block.Block, bool, error) {
	blocks, err := l.ReadAll()
	if err != nil {
		return block.Block{}, false, err
	}
	for _, b := range blocks {
		if b.Index == index {
			return b, true, nil
		}
	}
	return block.Block{}, false, nil
}

// Len reports how many complete records the log currently holds.
func (l *Log) Len() (int, error) {
	blocks, err := l.ReadAll()
	if err != nil {
		return 0, err
	}
	return len(blocks), nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
