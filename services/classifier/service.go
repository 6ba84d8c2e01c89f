package classifier

import (
	"path/filepath"
	"strings"
)

// FileType describes how an attachment of a given extension is
// rendered and whether its content can be analyzed.
type FileType struct {
	Icon      string
	Category  string
	Supported bool
}

var unsupportedFileType = FileType{
	Icon:      "📎",
	Category:  "Unsupported",
	Supported: false,
}

// classification is by lowercase extension against a fixed table
var fileTypes = map[string]FileType{
	"pdf":  {Icon: "📄", Category: "PDF Document", Supported: true},
	"xlsx": {Icon: "📊", Category: "Excel Spreadsheet", Supported: true},
	"xls":  {Icon: "📊", Category: "Excel Spreadsheet", Supported: true},
	"xlsm": {Icon: "📊", Category: "Excel Spreadsheet", Supported: true},
	"docx": {Icon: "📝", Category: "Word Document", Supported: true},
	"doc":  {Icon: "📝", Category: "Word Document", Supported: true},
}

// Classify maps a filename to its type descriptor. Deterministic and
// side-effect free; an empty or extensionless filename yields the
// generic unsupported descriptor.
func Classify(filename string) FileType {
	ext := Extension(filename)
	if ext == "" {
		return unsupportedFileType
	}

	fileType, ok := fileTypes[ext]
	if !ok {
		return unsupportedFileType
	}
	return fileType
}

// Extension returns the lowercase extension without the leading dot.
func Extension(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
