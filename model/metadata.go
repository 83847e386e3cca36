package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/cloudsync/rag/helper"
)

// Metadata holds the JSONB column attached to documents and chunks,
// e.g. source path, author or revision info supplied at ingestion.
type Metadata map[string]interface{}

// Value implements driver.Valuer so Metadata can be written as JSONB
func (m Metadata) Value() (driver.Value, error) {
	return m.Marshal()
}

// Scan implements sql.Scanner for reading the JSONB column back
func (m *Metadata) Scan(value interface{}) error {
	return m.Unmarshal(value)
}

// Marshal converts Metadata to JSON bytes
func (m Metadata) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal accepts JSON bytes, an existing Metadata or nil
func (m *Metadata) Unmarshal(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case Metadata:
		*m = v
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	default:
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}
}
