package risk

import (
	"sync"
	"time"

	"spotguard/internal/pkg/jsonutil"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const dateLayout = "2006-01-02"

// State 是风控持久化记录，唯一写入者是 Gate。
type State struct {
	DailyPnL            float64    `json:"daily_pnl"`
	DailyDate           string     `json:"daily_date"`
	MaxDrawdownSeen     float64    `json:"max_drawdown_seen"`
	PeakEquity          float64    `json:"peak_equity"`
	Equity              float64    `json:"equity"`
	ConsecutiveLosses   int        `json:"consecutive_losses"`
	CooldownUntil       *time.Time `json:"cooldown_until"`
	LiveTradingDisabled bool       `json:"live_trading_disabled"`
	OpenPositionCount   int        `json:"open_position_count"`
	DisabledAt          *time.Time `json:"disabled_at,omitempty"`

	// equityMissing 记录缺少 equity 字段（早期版本写入）。
	equityMissing bool
}

func (s State) clone() State {
	out := s
	if s.CooldownUntil != nil {
		t := *s.CooldownUntil
		out.CooldownUntil = &t
	}
	if s.DisabledAt != nil {
		t := *s.DisabledAt
		out.DisabledAt = &t
	}
	return out
}

// freshState 首次启动（无记录）时的初始状态。
func freshState(capital float64, now time.Time) State {
	return State{
		DailyDate:  now.UTC().Format(dateLayout),
		PeakEquity: capital,
		Equity:     capital,
	}
}

// Store 负责 State 的整记录读写；Save 必须在返回前落盘。
type Store interface {
	Load() (State, bool, error)
	Save(State) error
}

const stateSchema = `{
  "type": "object",
  "required": ["daily_pnl", "daily_date", "max_drawdown_seen", "peak_equity", "consecutive_losses",
               "cooldown_until", "live_trading_disabled", "open_position_count"],
  "properties": {
    "daily_pnl": {"type": "number"},
    "daily_date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "max_drawdown_seen": {"type": "number", "minimum": 0},
    "peak_equity": {"type": "number", "minimum": 0},
    "equity": {"type": "number"},
    "consecutive_losses": {"type": "integer", "minimum": 0},
    "cooldown_until": {"type": ["string", "null"]},
    "live_trading_disabled": {"type": "boolean"},
    "open_position_count": {"type": "integer", "minimum": 0},
    "disabled_at": {"type": ["string", "null"]}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonutil.CompileSchema("risk_state.schema.json", stateSchema)
	})
	return compiledSchema, schemaErr
}

// FileStore 将 State 以 JSON 原子写入单个文件，读取时做 schema 校验；
// 损坏的记录返回错误而不是回退到默认值。
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() (State, bool, error) {
	schema, err := loadSchema()
	if err != nil {
		return State{}, false, err
	}
	var rec struct {
		State
		Equity *float64 `json:"equity"`
	}
	found, err := jsonutil.LoadFile(s.path, schema, &rec)
	if err != nil || !found {
		return State{}, found, err
	}
	st := rec.State
	if rec.Equity != nil {
		st.Equity = *rec.Equity
	} else {
		st.equityMissing = true
	}
	return st, true, nil
}

func (s *FileStore) Save(st State) error {
	return jsonutil.SaveFile(s.path, st)
}

// MemoryStore 用于回测与测试。
type MemoryStore struct {
	mu    sync.Mutex
	state *State
	saves int
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return State{}, false, nil
	}
	return m.state.clone(), true, nil
}

func (m *MemoryStore) Save(st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := st.clone()
	m.state = &c
	m.saves++
	return nil
}

// Saves 返回 Save 调用次数。
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
