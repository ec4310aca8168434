package cmd

import (
	"bytes"
	"fmt"
	"testing"
	"text/tabwriter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Name string `json:"name" yaml:"name"`
}

func TestRender(t *testing.T) {
	v := []row{{Name: "ann"}}
	table := func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "NAME\tX")
		fmt.Fprintln(tw, "ann\t1")
	}

	var buf bytes.Buffer
	require.NoError(t, render(&buf, outputJSON, v, table))
	assert.JSONEq(t, `[{"name":"ann"}]`, buf.String())

	buf.Reset()
	require.NoError(t, render(&buf, outputYAML, v, table))
	assert.Equal(t, "- name: ann\n", buf.String())

	buf.Reset()
	require.NoError(t, render(&buf, outputTable, v, table))
	assert.Equal(t, "NAME  X\nann   1\n", buf.String())

	assert.Error(t, render(&buf, "xml", v, table))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefgh..", truncate("abcdefghijkl", 10))
	assert.Equal(t, "a b", truncate("a\nb", 10))
	assert.Equal(t, "ééé..", truncate("éééééé", 5))
}
