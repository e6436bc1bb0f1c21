package pgresolve_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relql/irsqlc/internal/pgresolve"
)

func TestValidate_AcceptsGrammaticalSQL(t *testing.T) {
	r := pgresolve.New()
	err := r.Validate("SELECT 1")
	require.NoError(t, err)
}

func TestValidate_RejectsGarbage(t *testing.T) {
	r := pgresolve.New()
	err := r.Validate("SELECT FROM FROM WHERE")
	require.Error(t, err)
}

func TestCanonicalize_NormalizesWhitespace(t *testing.T) {
	r := pgresolve.New()
	out, err := r.Canonicalize("select   1   as   x")
	require.NoError(t, err)
	require.Contains(t, out, "SELECT")
	require.Contains(t, out, "1")
}

func TestCanonicalize_ErrorsOnInvalidSQL(t *testing.T) {
	r := pgresolve.New()
	_, err := r.Canonicalize("not sql at all (((")
	require.Error(t, err)
}

func TestStatementCount(t *testing.T) {
	r := pgresolve.New()
	n, err := r.StatementCount("SELECT 1; SELECT 2; SELECT 3")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestStatementCount_Single(t *testing.T) {
	r := pgresolve.New()
	n, err := r.StatementCount("SELECT 1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
