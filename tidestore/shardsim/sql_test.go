package shardsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidestore/tidestore-go/tidestore"
)

func TestParseSelectStar(t *testing.T) {
	stmt, err := parseSelect("SELECT * FROM users")
	require.NoError(t, err)
	assert.True(t, stmt.star)
	assert.Equal(t, "users", stmt.table)
	assert.Nil(t, stmt.where)
	assert.Empty(t, stmt.groupBy)
	assert.Empty(t, stmt.orderBy)
	assert.Equal(t, -1, stmt.limit)
	assert.Equal(t, -1, stmt.offset)
}

func TestParseSelectItems(t *testing.T) {
	stmt, err := parseSelect("SELECT id, name AS n FROM users")
	require.NoError(t, err)
	require.Len(t, stmt.items, 2)

	assert.Equal(t, &colRef{name: "id"}, stmt.items[0].expr)
	assert.Empty(t, stmt.items[0].alias)
	assert.Equal(t, &colRef{name: "name"}, stmt.items[1].expr)
	assert.Equal(t, "n", stmt.items[1].alias)
}

func TestParseWhere(t *testing.T) {
	tests := []struct {
		name string
		stmt string
		want whereCond
	}{
		{"IntEquality", "SELECT * FROM t WHERE id = 7",
			whereCond{field: "id", op: "=", val: 7}},
		{"GreaterOrEqual", "SELECT * FROM t WHERE age >= 30",
			whereCond{field: "age", op: ">=", val: 30}},
		{"NotEqual", "SELECT * FROM t WHERE city != 'A'",
			whereCond{field: "city", op: "!=", val: "A"}},
		{"BoolLiteral", "SELECT * FROM t WHERE active = true",
			whereCond{field: "active", op: "=", val: true}},
		{"NullLiteral", "SELECT * FROM t WHERE nick = NULL",
			whereCond{field: "nick", op: "=", val: nil}},
		{"FloatLiteral", "SELECT * FROM t WHERE score < 1.5",
			whereCond{field: "score", op: "<", val: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := parseSelect(tt.stmt)
			require.NoError(t, err)
			require.NotNil(t, stmt.where)
			assert.Equal(t, tt.want, *stmt.where)
		})
	}
}

func TestParseAggregates(t *testing.T) {
	stmt, err := parseSelect(
		"SELECT city, SUM(age) AS total, COUNT(*) AS cnt, COUNT(nick) AS nn, " +
			"MIN(age) AS lo, MAX(age) AS hi FROM users GROUP BY city")
	require.NoError(t, err)
	require.Len(t, stmt.items, 6)
	assert.Equal(t, []string{"city"}, stmt.groupBy)

	assert.Equal(t, &aggrExpr{fn: "SUM", arg: "age"}, stmt.items[1].expr)
	assert.Equal(t, &aggrExpr{fn: "COUNT", star: true}, stmt.items[2].expr)
	assert.Equal(t, &aggrExpr{fn: "COUNT", arg: "nick"}, stmt.items[3].expr)
	assert.Equal(t, &aggrExpr{fn: "MIN", arg: "age"}, stmt.items[4].expr)
	assert.Equal(t, &aggrExpr{fn: "MAX", arg: "age"}, stmt.items[5].expr)
}

func TestParseArithmeticPrecedence(t *testing.T) {
	stmt, err := parseSelect("SELECT a + b * 2 FROM t")
	require.NoError(t, err)
	require.Len(t, stmt.items, 1)

	// Multiplication binds tighter than addition.
	add, ok := stmt.items[0].expr.(*arithExpr)
	require.True(t, ok)
	assert.Equal(t, byte('+'), add.op)
	assert.Equal(t, &colRef{name: "a"}, add.left)

	mul, ok := add.right.(*arithExpr)
	require.True(t, ok)
	assert.Equal(t, byte('*'), mul.op)
	assert.Equal(t, &colRef{name: "b"}, mul.left)
	assert.Equal(t, &literal{val: 2}, mul.right)
}

func TestParseParenthesesOverridePrecedence(t *testing.T) {
	stmt, err := parseSelect("SELECT (a + b) * 2 FROM t")
	require.NoError(t, err)

	mul, ok := stmt.items[0].expr.(*arithExpr)
	require.True(t, ok)
	assert.Equal(t, byte('*'), mul.op)

	add, ok := mul.left.(*arithExpr)
	require.True(t, ok)
	assert.Equal(t, byte('+'), add.op)
}

func TestParseBindVariable(t *testing.T) {
	stmt, err := parseSelect("SELECT age + $delta AS bumped FROM users")
	require.NoError(t, err)

	add, ok := stmt.items[0].expr.(*arithExpr)
	require.True(t, ok)
	assert.Equal(t, &bindRef{name: "delta"}, add.right)
	assert.Equal(t, "bumped", stmt.items[0].alias)
}

func TestParseOrderBy(t *testing.T) {
	stmt, err := parseSelect(
		"SELECT * FROM t ORDER BY a, b DESC, c ASC NULLS FIRST, d DESC NULLS LAST")
	require.NoError(t, err)
	require.Len(t, stmt.orderBy, 4)

	assert.Equal(t, orderTerm{field: "a",
		spec: tidestore.SortSpec{IsDesc: false, NullsFirst: false}}, stmt.orderBy[0])
	assert.Equal(t, orderTerm{field: "b",
		spec: tidestore.SortSpec{IsDesc: true, NullsFirst: true}}, stmt.orderBy[1])
	assert.Equal(t, orderTerm{field: "c",
		spec: tidestore.SortSpec{IsDesc: false, NullsFirst: true}}, stmt.orderBy[2])
	assert.Equal(t, orderTerm{field: "d",
		spec: tidestore.SortSpec{IsDesc: true, NullsFirst: false}}, stmt.orderBy[3])
}

func TestParseLimitOffset(t *testing.T) {
	stmt, err := parseSelect("SELECT * FROM t ORDER BY id LIMIT 3 OFFSET 2")
	require.NoError(t, err)
	assert.Equal(t, 3, stmt.limit)
	assert.Equal(t, 2, stmt.offset)
}

func TestParseNumberWidths(t *testing.T) {
	stmt, err := parseSelect("SELECT * FROM t WHERE big = 5000000000")
	require.NoError(t, err)
	assert.Equal(t, int64(5000000000), stmt.where.val)

	stmt, err = parseSelect("SELECT * FROM t WHERE small = 42")
	require.NoError(t, err)
	assert.Equal(t, 42, stmt.where.val)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		stmt string
	}{
		{"MissingFrom", "SELECT *"},
		{"MissingTable", "SELECT * FROM"},
		{"BareDollar", "SELECT $ FROM t"},
		{"UnterminatedString", "SELECT * FROM t WHERE a = 'oops"},
		{"SumStar", "SELECT SUM(*) FROM t"},
		{"TrailingInput", "SELECT * FROM t garbage here"},
		{"LoneBang", "SELECT * FROM t WHERE a ! 1"},
		{"NullsWithoutPlacement", "SELECT * FROM t ORDER BY a NULLS"},
		{"WhereNeedsLiteral", "SELECT * FROM t WHERE a = b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSelect(tt.stmt)
			assert.Error(t, err, "statement %q must not parse", tt.stmt)
		})
	}
}

func TestKeywordsAreCaseInsensitive(t *testing.T) {
	stmt, err := parseSelect("select id from users where id = 1 order by id desc limit 1")
	require.NoError(t, err)
	assert.Equal(t, "users", stmt.table)
	require.Len(t, stmt.orderBy, 1)
	assert.True(t, stmt.orderBy[0].spec.IsDesc)
	assert.Equal(t, 1, stmt.limit)
}
