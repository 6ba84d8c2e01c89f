package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmailSubject(t *testing.T) {
	assert.Equal(t, "Pump station", NormalizeEmailSubject("Re: Pump station"))
	assert.Equal(t, "Pump station", NormalizeEmailSubject("RE: FWD: Pump station"))
	assert.Equal(t, "Pump station", NormalizeEmailSubject("Fw[2]: Pump station"))
	assert.Equal(t, "Pump station", NormalizeEmailSubject("  Pump station  "))
	assert.Equal(t, "", NormalizeEmailSubject("Re:"))
}

func TestNormalizeMessageID(t *testing.T) {
	assert.Equal(t, "abc@mail.example.com", NormalizeMessageID("<abc@mail.example.com>"))
	assert.Equal(t, "abc@mail.example.com", NormalizeMessageID(" abc@mail.example.com "))
	assert.Equal(t, "", NormalizeMessageID(""))
}

func TestCanonicalFilenameSet(t *testing.T) {
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, CanonicalFilenameSet([]string{"b.pdf", "a.pdf", "b.pdf"}))
	assert.Equal(t, []string{"Sheet.xlsx", "sheet.xlsx"}, CanonicalFilenameSet([]string{"sheet.xlsx", "Sheet.xlsx"}))
	assert.Empty(t, CanonicalFilenameSet(nil))
}

func TestGenerateNanoIDWithPrefix(t *testing.T) {
	id := GenerateNanoIDWithPrefix("email", 24)
	assert.Len(t, id, len("email_")+24)
	assert.Contains(t, id, "email_")

	other := GenerateNanoIDWithPrefix("email", 24)
	assert.NotEqual(t, id, other)
}
