package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// GenesisHash is the prev_hash for the first record in a new sink file.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// sinkQueueSize bounds the async write queue. When full, entries degrade
// to a stderr notice instead of blocking the decision path.
const sinkQueueSize = 1024

// chainedRecord is one line in the hash-chained JSONL file.
type chainedRecord struct {
	Entry
	PrevHash string `json:"prev_hash"`
}

// Sink is an append-only JSONL file with SHA-256 hash chaining. Each
// record's prev_hash is the hash of the previous record's JSON line,
// forming a tamper-evident chain. Writes are asynchronous; errors go to
// stderr and never surface to the caller.
type Sink struct {
	path     string
	file     *os.File
	prevHash string

	ch   chan Entry
	done chan struct{}
	once sync.Once
}

// OpenSink opens (or creates) a sink file for appending and starts the
// writer goroutine. If the file already exists, the last line is read to
// recover the chain tail.
func OpenSink(path string) (*Sink, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	prevHash := GenesisHash

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("audit: read existing sink: %w", err)
		}
		scanner := bufio.NewScanner(f)
		var lastLine []byte
		for scanner.Scan() {
			lastLine = make([]byte, len(scanner.Bytes()))
			copy(lastLine, scanner.Bytes())
		}
		f.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("audit: scan existing sink: %w", err)
		}
		if len(lastLine) > 0 {
			prevHash = HashLine(lastLine)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open sink: %w", err)
	}

	s := &Sink{
		path:     path,
		file:     file,
		prevHash: prevHash,
		ch:       make(chan Entry, sinkQueueSize),
		done:     make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Enqueue hands an entry to the writer goroutine. If the queue is full
// the entry is reported to stderr rather than blocking the caller; the
// in-memory ring still holds it.
func (s *Sink) Enqueue(e Entry) {
	select {
	case s.ch <- e:
	default:
		fmt.Fprintf(os.Stderr, "audit sink: queue full, entry %s not persisted\n", e.ID)
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for e := range s.ch {
		if err := s.write(e); err != nil {
			// The record stays queryable in the ring; surface the sink
			// failure without failing any governance call.
			fmt.Fprintf(os.Stderr, "audit sink: %v\n", err)
		}
	}
}

func (s *Sink) write(e Entry) error {
	rec := chainedRecord{Entry: e, PrevHash: s.prevHash}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal entry %s: %w", e.ID, err)
	}
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write entry %s: %w", e.ID, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	s.prevHash = HashLine(line)
	return nil
}

// Close drains queued entries, then flushes and closes the file.
func (s *Sink) Close() error {
	var err error
	s.once.Do(func() {
		close(s.ch)
		<-s.done
		err = s.file.Close()
	})
	return err
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}
