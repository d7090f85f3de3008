package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableNames(t *testing.T) {
	t.Parallel()

	require.Equal(t, "QUESTION_KEYWORD", TableQuestionKeyword.String())
	require.Equal(t, "Table(99)", Table(99).String())
}

func TestSchemaStatementsFollowDependencyOrder(t *testing.T) {
	t.Parallel()

	schema := Schema{}
	for _, tbl := range Tables {
		schema[tbl] = "CREATE " + tbl.String()
	}
	stmts, err := schema.Statements()
	require.NoError(t, err)
	require.Equal(t, []string{
		"CREATE KEYWORD",
		"CREATE USER",
		"CREATE QUESTION",
		"CREATE ANSWER",
		"CREATE QUESTION_KEYWORD",
	}, stmts)
}

func TestSchemaMissingTable(t *testing.T) {
	t.Parallel()

	schema := Schema{TableKeyword: "CREATE KEYWORD"}
	_, err := schema.DDL(TableAnswer)
	require.ErrorContains(t, err, "ANSWER")

	_, err = schema.Statements()
	require.Error(t, err)
}
