package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanBytes(tt.in))
	}
}

func TestPrintHelpersWriteToOut(t *testing.T) {
	var buf bytes.Buffer
	prev := Out
	Out = &buf
	defer func() { Out = prev }()

	PrintInfo("content", "7301")
	PrintError("lookup failed", "api error")
	PrintSuccess("done")

	out := buf.String()
	assert.Contains(t, out, "content")
	assert.Contains(t, out, "7301")
	assert.Contains(t, out, "lookup failed: api error")
	assert.Contains(t, out, "done")
}

func TestTableContainsCells(t *testing.T) {
	out := Table([]string{"NAME", "COOKIES"}, [][]string{{"main", "sessionid, ttwid"}})
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "sessionid, ttwid")
}
