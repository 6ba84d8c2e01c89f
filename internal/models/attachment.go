package models

import (
	"database/sql/driver"
	"encoding/json"
)

// Attachment is one file found in a message. It has no identity or
// lifecycle outside its parent EmailLog; OriginalFilename is unique
// within the parent's attachment list.
type Attachment struct {
	OriginalFilename string `json:"original_filename"`
	Extension        string `json:"extension"`
	ContentType      string `json:"content_type"`
	Size             int    `json:"size"`

	// Derived by the classifier, never hand-edited
	Supported bool   `json:"supported"`
	Icon      string `json:"icon"`
	Category  string `json:"category"`

	// Object-storage location of the raw bytes, supported types only
	StorageKey string `json:"storage_key,omitempty"`

	// Populated only after a successful analysis run targeting this attachment
	ExtractedText string `json:"extracted_text,omitempty"`
	AnalysisError string `json:"analysis_error,omitempty"`
}

// AttachmentList is stored as a JSONB column on the parent email log
type AttachmentList []Attachment

// Value implements the driver.Valuer interface for AttachmentList
func (a AttachmentList) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface for AttachmentList
func (a *AttachmentList) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, a)
}

// Filenames returns the original filenames in list order.
func (a AttachmentList) Filenames() []string {
	names := make([]string, 0, len(a))
	for _, att := range a {
		names = append(names, att.OriginalFilename)
	}
	return names
}
