package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"spotguard/internal/pkg/fsutil"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CompileSchema 编译内嵌的 JSON Schema 文本。
func CompileSchema(name, schema string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader([]byte(schema))); err != nil {
		return nil, err
	}
	return compiler.Compile(name)
}

// SaveFile 以缩进 JSON 原子写入 path。
func SaveFile(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	raw = append(raw, '\n')
	if err := fsutil.WriteFileAtomic(path, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LoadFile 读取并校验 path，文件不存在时返回 (false, nil)。
// schema 为 nil 时跳过校验。
func LoadFile(path string, schema *jsonschema.Schema, v any) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if schema != nil {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return true, fmt.Errorf("parse %s: %w", path, err)
		}
		if err := schema.Validate(doc); err != nil {
			return true, fmt.Errorf("validate %s: %w", path, err)
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}
