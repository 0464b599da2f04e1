package engine

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"spotguard/internal/execution"
	"spotguard/internal/ledger"
	"spotguard/internal/pkg/jsonutil"
)

// PendingRecord 是一笔结果未知的实盘订单及其上下文。
// 在交易所给出明确结果之前，引擎不会再下新单。
type PendingRecord struct {
	Order      execution.PendingOrder `json:"order"`
	ExitReason ledger.ExitReason      `json:"exit_reason,omitempty"`
	Capital    float64                `json:"capital,omitempty"`
	Confidence float64                `json:"confidence,omitempty"`
}

// PendingStore 持久化待核对订单，Save(nil) 表示清除。
type PendingStore interface {
	Load() (*PendingRecord, error)
	Save(rec *PendingRecord) error
}

const pendingSchema = `{
  "type": "object",
  "required": ["order"],
  "properties": {
    "order": {
      "type": "object",
      "required": ["symbol", "side", "token", "quantity"],
      "properties": {
        "side": {"enum": ["BUY", "SELL"]},
        "token": {"type": "string", "minLength": 1},
        "quantity": {"type": "number", "exclusiveMinimum": 0}
      }
    }
  }
}`

type FilePendingStore struct {
	path string
}

func NewFilePendingStore(path string) *FilePendingStore {
	return &FilePendingStore{path: path}
}

func (s *FilePendingStore) Load() (*PendingRecord, error) {
	schema, err := jsonutil.CompileSchema("pending_order.json", pendingSchema)
	if err != nil {
		return nil, err
	}
	var rec PendingRecord
	found, err := jsonutil.LoadFile(s.path, schema, &rec)
	if err != nil {
		return nil, fmt.Errorf("load pending order: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

func (s *FilePendingStore) Save(rec *PendingRecord) error {
	if rec == nil {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("clear pending order: %w", err)
		}
		return nil
	}
	return jsonutil.SaveFile(s.path, rec)
}

type MemoryPendingStore struct {
	mu  sync.Mutex
	rec *PendingRecord
}

func (s *MemoryPendingStore) Load() (*PendingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil, nil
	}
	cp := *s.rec
	return &cp, nil
}

func (s *MemoryPendingStore) Save(rec *PendingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec == nil {
		s.rec = nil
		return nil
	}
	cp := *rec
	s.rec = &cp
	return nil
}
