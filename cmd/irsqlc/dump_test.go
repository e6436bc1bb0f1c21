package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relql/irsqlc/internal/ctx"
)

func TestParseOutputFormat(t *testing.T) {
	f, err := parseOutputFormat("json")
	require.NoError(t, err)
	require.Equal(t, ctx.FormatJSON, f)

	_, err = parseOutputFormat("bogus")
	require.Error(t, err)
}

func TestRunFixture_SelectRoot(t *testing.T) {
	result, err := runFixture(fixtures["select-root"], ctx.FormatNative)
	require.NoError(t, err)
	require.Contains(t, result.SQL, "tab_person")
}

func TestDumpCmd_UnknownFixtureErrors(t *testing.T) {
	cmd := dumpCmd()
	cmd.SetArgs([]string{"--fixture", "does-not-exist"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	require.Error(t, err)
}

func TestDumpCmd_KnownFixturePrintsSQL(t *testing.T) {
	cmd := dumpCmd()
	cmd.SetArgs([]string{"--fixture", "select-root"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	err := cmd.Execute()
	require.NoError(t, err)
	require.Contains(t, out.String(), "tab_person")
}

func TestVersionCmd_PrintsInfo(t *testing.T) {
	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	err := cmd.Execute()
	require.NoError(t, err)
	require.Contains(t, out.String(), "irsqlc")
}
