package trace

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_ErrorsCarryLineNumber(t *testing.T) {
	src := "{\"k\":\"unit\",\"u\":1,\"name\":\"a.lua\"}\nnot-json\n"
	r, err := NewReader(strings.NewReader(src))
	require.NoError(t, err)

	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, KindUnit, rec.Kind)

	_, err = r.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReader_MissingKindFails(t *testing.T) {
	r, err := NewReader(strings.NewReader("{\"u\":1}\n"))
	require.NoError(t, err)
	_, err = r.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing record kind")
}

func TestReader_SkipsBlankLines(t *testing.T) {
	src := "\n{\"k\":\"meta\",\"key\":\"a\",\"value\":\"b\"}\n\n   \n{\"k\":\"leave\",\"tid\":1,\"t\":5}\n"
	r, err := NewReader(strings.NewReader(src))
	require.NoError(t, err)

	recs := readAll(t, r)
	require.Len(t, recs, 2)
	assert.Equal(t, KindMeta, recs[0].Kind)
	assert.Equal(t, KindLeave, recs[1].Kind)
}

func TestReader_EmptyStream(t *testing.T) {
	r, err := NewReader(strings.NewReader(""))
	require.NoError(t, err)
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open("/nonexistent/run.jsonl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot open trace file")
}
