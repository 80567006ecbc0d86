package internal

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tessera-data/tessera"
)

// TestParseBasicSelect verifies the minimal SELECT ... FROM form.
func TestParseBasicSelect(t *testing.T) {
	q, err := Parse("SELECT id, name FROM users")
	require.NoError(t, err)
	assert.Equal(t, "users", q.FromCollection)
	require.Len(t, q.SelectFields, 2)
	assert.Equal(t, FieldRef{Name: "id"}, q.SelectFields[0])
	assert.Equal(t, FieldRef{Name: "name"}, q.SelectFields[1])
	assert.Empty(t, q.Joins)
	assert.Empty(t, q.Where)
	assert.Nil(t, q.Limit)
}

// TestParseStar verifies SELECT * and qualified select fields.
func TestParseStar(t *testing.T) {
	q, err := Parse("SELECT * FROM orders")
	require.NoError(t, err)
	require.Len(t, q.SelectFields, 1)
	assert.True(t, q.SelectFields[0].IsStar())

	q, err = Parse("SELECT users.name, orders.amount FROM users")
	require.NoError(t, err)
	assert.Equal(t, FieldRef{Table: "users", Name: "name"}, q.SelectFields[0])
	assert.Equal(t, FieldRef{Table: "orders", Name: "amount"}, q.SelectFields[1])
}

// TestParseJoin verifies JOIN ... ON decomposition into qualified refs.
func TestParseJoin(t *testing.T) {
	q, err := Parse("SELECT name, amount FROM users JOIN orders ON users.id = orders.uid")
	require.NoError(t, err)
	require.Len(t, q.Joins, 1)
	join := q.Joins[0]
	assert.Equal(t, "orders", join.Collection)
	assert.Equal(t, FieldRef{Table: "users", Name: "id"}, join.Left)
	assert.Equal(t, FieldRef{Table: "orders", Name: "uid"}, join.Right)
	assert.Equal(t, []string{"users", "orders"}, q.Collections())
}

// TestParseJoinWithoutOn verifies a JOIN missing its ON clause is a join
// condition error, not a generic syntax error.
func TestParseJoinWithoutOn(t *testing.T) {
	_, err := Parse("SELECT * FROM users JOIN orders")
	require.Error(t, err)
	assert.True(t, tessera.IsJoinConditionError(err))

	_, err = Parse("SELECT * FROM users JOIN orders ON id = orders.uid")
	require.Error(t, err)
	assert.True(t, tessera.IsJoinConditionError(err), "unqualified join side must be rejected")
}

// TestParseWhere verifies all comparison operators and operand kinds.
func TestParseWhere(t *testing.T) {
	q, err := Parse("SELECT * FROM t WHERE a = 'x' AND b != 2 AND c >= :min AND d < other")
	require.NoError(t, err)
	require.Len(t, q.Where, 4)

	assert.Equal(t, OpEq, q.Where[0].Op)
	assert.Equal(t, OperandLiteral, q.Where[0].Value.Kind)
	assert.Equal(t, tessera.String("x"), q.Where[0].Value.Literal)

	assert.Equal(t, OpNe, q.Where[1].Op)
	assert.Equal(t, tessera.Number(2), q.Where[1].Value.Literal)

	assert.Equal(t, OpGte, q.Where[2].Op)
	assert.Equal(t, OperandParam, q.Where[2].Value.Kind)
	assert.Equal(t, "min", q.Where[2].Value.Param)

	assert.Equal(t, OpLt, q.Where[3].Op)
	assert.Equal(t, OperandField, q.Where[3].Value.Kind)
	assert.Equal(t, FieldRef{Name: "other"}, q.Where[3].Value.Field)
}

// TestParseWhereLiterals verifies bool and null literal operands.
func TestParseWhereLiterals(t *testing.T) {
	q, err := Parse("SELECT * FROM t WHERE active = true AND deleted_at = null AND score = -1.5")
	require.NoError(t, err)
	require.Len(t, q.Where, 3)
	assert.Equal(t, tessera.Bool(true), q.Where[0].Value.Literal)
	assert.True(t, q.Where[1].Value.Literal.IsNull())
	assert.Equal(t, tessera.Number(-1.5), q.Where[2].Value.Literal)
}

// TestParseRejectsOr verifies OR is an explicit syntax error rather than a
// silently mis-parsed conjunction.
func TestParseRejectsOr(t *testing.T) {
	_, err := Parse("SELECT * FROM t WHERE a = 1 OR b = 2")
	require.Error(t, err)
	assert.True(t, tessera.IsSyntaxError(err))
}

// TestParseOrderByAndLimit covers ORDER BY directions and LIMIT.
func TestParseOrderByAndLimit(t *testing.T) {
	q, err := Parse("SELECT * FROM t ORDER BY a, b DESC, t.c ASC LIMIT 10")
	require.NoError(t, err)
	require.Len(t, q.OrderBy, 3)
	assert.False(t, q.OrderBy[0].Desc)
	assert.True(t, q.OrderBy[1].Desc)
	assert.Equal(t, FieldRef{Table: "t", Name: "c"}, q.OrderBy[2].Field)
	require.NotNil(t, q.Limit)
	assert.Equal(t, 10, *q.Limit)
}

// TestParseLimitErrors verifies non-integer and negative LIMIT values fail.
func TestParseLimitErrors(t *testing.T) {
	for _, text := range []string{
		"SELECT * FROM t LIMIT abc",
		"SELECT * FROM t LIMIT -1",
		"SELECT * FROM t LIMIT",
	} {
		_, err := Parse(text)
		assert.Error(t, err, text)
		assert.True(t, tessera.IsSyntaxError(err), text)
	}
}

// TestParseSyntaxErrors covers malformed inputs that must never produce a
// partial AST.
func TestParseSyntaxErrors(t *testing.T) {
	for _, text := range []string{
		"",
		"SELECT",
		"SELECT FROM users",
		"SELECT * users",
		"SELECT * FROM",
		"SELECT * FROM users WHERE",
		"SELECT * FROM users WHERE a",
		"SELECT * FROM users WHERE a ==",
		"SELECT * FROM users GROUP BY a",
		"SELECT * FROM users; DROP TABLE users",
		"SELECT * FROM users WHERE a = 'unterminated",
		"SELECT * FROM users WHERE a = :",
	} {
		_, err := Parse(text)
		assert.Error(t, err, "expected error for %q", text)
	}
}

// TestParseStringEscapes verifies doubled-quote escaping inside literals.
func TestParseStringEscapes(t *testing.T) {
	q, err := Parse("SELECT * FROM t WHERE name = 'O''Brien'")
	require.NoError(t, err)
	assert.Equal(t, tessera.String("O'Brien"), q.Where[0].Value.Literal)
}

// TestParseCaseInsensitiveKeywords verifies keywords match in any case while
// identifiers keep theirs.
func TestParseCaseInsensitiveKeywords(t *testing.T) {
	q, err := Parse("select Name from Users where Active = TRUE order by Name desc limit 3")
	require.NoError(t, err)
	assert.Equal(t, "Users", q.FromCollection)
	assert.Equal(t, "Name", q.SelectFields[0].Name)
	assert.True(t, q.OrderBy[0].Desc)
}

// TestParseRoundTrip verifies String() re-serialization parses back into an
// equivalent AST.
func TestParseRoundTrip(t *testing.T) {
	texts := []string{
		"SELECT id, name FROM users",
		"SELECT * FROM orders WHERE amount > 10.5 AND status = 'open'",
		"SELECT name, amount FROM users JOIN orders ON users.id = orders.uid WHERE uid = :id ORDER BY amount DESC LIMIT 5",
	}
	for _, text := range texts {
		first, err := Parse(text)
		require.NoError(t, err, text)
		second, err := Parse(first.String())
		require.NoError(t, err, first.String())
		assert.Equal(t, first, second, text)
	}
}

// TestParseRoundTripGenerated drives the round-trip property across randomly
// generated queries covering the whole grammar: qualified and bare fields,
// star selects, joins, every operator and operand kind, multi-key ordering
// and limits. The seed is fixed so failures reproduce.
func TestParseRoundTripGenerated(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		text := generateQuery(rng)
		first, err := Parse(text)
		require.NoError(t, err, text)
		second, err := Parse(first.String())
		require.NoError(t, err, "re-parse of %q from %q", first.String(), text)
		assert.Equal(t, first, second, text)
	}
}

// generateQuery builds one random query within the supported grammar.
func generateQuery(rng *rand.Rand) string {
	collections := []string{"users", "orders", "events"}
	fields := []string{"id", "name", "amount", "active", "created_at"}
	operators := []string{"=", "!=", ">", ">=", "<", "<="}

	pick := func(options []string) string { return options[rng.Intn(len(options))] }

	from := pick(collections)

	var b strings.Builder
	b.WriteString("SELECT ")
	if rng.Intn(5) == 0 {
		b.WriteString("*")
	} else {
		count := 1 + rng.Intn(3)
		for i := 0; i < count; i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			if rng.Intn(2) == 0 {
				b.WriteString(pick(collections) + "." + pick(fields))
			} else {
				b.WriteString(pick(fields))
			}
		}
	}
	b.WriteString(" FROM " + from)

	for i := 0; i < rng.Intn(3); i++ {
		join := pick(collections)
		fmt.Fprintf(&b, " JOIN %s ON %s.%s = %s.%s",
			join, from, pick(fields), join, pick(fields))
	}

	if conds := rng.Intn(3); conds > 0 {
		b.WriteString(" WHERE ")
		for i := 0; i < conds; i++ {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString(pick(fields) + " " + pick(operators) + " ")
			switch rng.Intn(6) {
			case 0:
				fmt.Fprintf(&b, "'%s'", pick([]string{"open", "closed", "x y"}))
			case 1:
				fmt.Fprintf(&b, "%d", rng.Intn(1000))
			case 2:
				fmt.Fprintf(&b, "%.2f", rng.Float64()*100)
			case 3:
				b.WriteString(pick([]string{"true", "false", "null"}))
			case 4:
				b.WriteString(":" + pick(fields))
			default:
				b.WriteString(pick(fields))
			}
		}
	}

	if keys := rng.Intn(3); keys > 0 {
		b.WriteString(" ORDER BY ")
		for i := 0; i < keys; i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pick(fields))
			switch rng.Intn(3) {
			case 0:
				b.WriteString(" ASC")
			case 1:
				b.WriteString(" DESC")
			}
		}
	}

	if rng.Intn(2) == 0 {
		fmt.Fprintf(&b, " LIMIT %d", rng.Intn(100))
	}

	return b.String()
}
