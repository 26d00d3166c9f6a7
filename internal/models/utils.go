package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// FolderProgressMap is stored as jsonb keyed by folder path.
type FolderProgressMap map[string]*FolderProgress

func (m FolderProgressMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *FolderProgressMap) Scan(value interface{}) error {
	if value == nil {
		*m = make(FolderProgressMap)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported folder progress type %T", value)
	}

	return json.Unmarshal(bytes, m)
}
