package ledger

import (
	"sync"

	"spotguard/internal/pkg/jsonutil"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Snapshot 是账本的持久化形态。
type Snapshot struct {
	Position     *Position     `json:"position"`
	TradeHistory []TradeRecord `json:"trade_history"`
}

type Store interface {
	Load() (Snapshot, bool, error)
	Save(Snapshot) error
}

const portfolioSchema = `{
  "$defs": {
    "position": {
      "type": "object",
      "required": ["symbol", "entry_price", "quantity", "capital_committed", "opened_at"],
      "properties": {
        "symbol": {"type": "string", "minLength": 1},
        "entry_price": {"type": "number", "exclusiveMinimum": 0},
        "quantity": {"type": "number", "exclusiveMinimum": 0},
        "capital_committed": {"type": "number", "minimum": 0},
        "opened_at": {"type": "string"}
      }
    }
  },
  "type": "object",
  "required": ["position", "trade_history"],
  "properties": {
    "position": {"oneOf": [{"type": "null"}, {"$ref": "#/$defs/position"}]},
    "trade_history": {
      "type": ["array", "null"],
      "items": {
        "allOf": [{"$ref": "#/$defs/position"}],
        "required": ["id", "exit_price", "pnl", "exit_reason", "closed_at"],
        "properties": {
          "id": {"type": "string"},
          "exit_price": {"type": "number"},
          "pnl": {"type": "number"},
          "exit_reason": {"enum": ["Stop Loss", "Take Profit", "Signal Exit", "Max Hold Time"]},
          "closed_at": {"type": "string"}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonutil.CompileSchema("portfolio_state.schema.json", portfolioSchema)
	})
	return compiledSchema, schemaErr
}

// FileStore 原子写入 JSON 账本，读取时校验结构。
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (Snapshot, bool, error) {
	schema, err := loadSchema()
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	found, err := jsonutil.LoadFile(s.path, schema, &snap)
	if err != nil || !found {
		return Snapshot{}, found, err
	}
	return snap, true, nil
}

func (s *FileStore) Save(snap Snapshot) error {
	if snap.TradeHistory == nil {
		snap.TradeHistory = []TradeRecord{}
	}
	return jsonutil.SaveFile(s.path, snap)
}

type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return Snapshot{}, false, nil
	}
	return m.snap.clone(), true, nil
}

func (m *MemoryStore) Save(snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := snap.clone()
	m.snap = &c
	return nil
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{TradeHistory: append([]TradeRecord(nil), s.TradeHistory...)}
	if s.Position != nil {
		p := *s.Position
		out.Position = &p
	}
	return out
}
