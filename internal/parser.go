package internal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tessera-data/tessera"
)

// FieldRef names a field, optionally qualified by its collection.
type FieldRef struct {
	Table string
	Name  string
}

// String renders the reference back into query syntax.
func (f FieldRef) String() string {
	if f.Table != "" {
		return f.Table + "." + f.Name
	}
	return f.Name
}

// IsStar reports whether the reference selects all fields.
func (f FieldRef) IsStar() bool { return f.Table == "" && f.Name == "*" }

// Operator is a comparison operator in a WHERE condition.
type Operator string

const (
	OpEq  Operator = "="
	OpNe  Operator = "!="
	OpGt  Operator = ">"
	OpGte Operator = ">="
	OpLt  Operator = "<"
	OpLte Operator = "<="
)

// OperandKind discriminates the right-hand side of a condition.
type OperandKind string

const (
	OperandLiteral OperandKind = "literal"
	OperandParam   OperandKind = "param"
	OperandField   OperandKind = "field"
)

// Operand is the right-hand side of a condition: a literal value, a :name
// parameter reference, or another field for field-to-field comparison.
type Operand struct {
	Kind    OperandKind
	Literal tessera.Value
	Param   string
	Field   FieldRef
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandParam:
		return ":" + o.Param
	case OperandField:
		return o.Field.String()
	default:
		switch o.Literal.Kind {
		case tessera.KindString:
			return "'" + strings.ReplaceAll(o.Literal.Str, "'", "''") + "'"
		case tessera.KindBool:
			return strconv.FormatBool(o.Literal.Bool)
		case tessera.KindNumber:
			return strconv.FormatFloat(o.Literal.Num, 'g', -1, 64)
		default:
			return "null"
		}
	}
}

// Condition is a single comparison in the WHERE conjunction.
type Condition struct {
	Field FieldRef
	Op    Operator
	Value Operand
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Op, c.Value)
}

// JoinClause is one JOIN <collection> ON <l> = <r> clause.
type JoinClause struct {
	Collection string
	Left       FieldRef
	Right      FieldRef
}

func (j JoinClause) String() string {
	return fmt.Sprintf("JOIN %s ON %s = %s", j.Collection, j.Left, j.Right)
}

// OrderKey is one ORDER BY key.
type OrderKey struct {
	Field FieldRef
	Desc  bool
}

func (o OrderKey) String() string {
	if o.Desc {
		return o.Field.String() + " DESC"
	}
	return o.Field.String() + " ASC"
}

// ParsedQuery is the typed AST of one federated query. It is ephemeral,
// rebuilt per execution and never persisted.
type ParsedQuery struct {
	SelectFields   []FieldRef
	FromCollection string
	Joins          []JoinClause
	Where          []Condition
	OrderBy        []OrderKey
	Limit          *int
}

// Collections returns every collection name the query touches, FROM first.
func (q *ParsedQuery) Collections() []string {
	seen := NewSet[string]()
	out := []string{q.FromCollection}
	seen.Add(q.FromCollection)
	for _, j := range q.Joins {
		if !seen.Contains(j.Collection) {
			seen.Add(j.Collection)
			out = append(out, j.Collection)
		}
	}
	return out
}

// String re-serializes the AST; parsing the output yields an equivalent AST.
func (q *ParsedQuery) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, f := range q.SelectFields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.String())
	}
	b.WriteString(" FROM ")
	b.WriteString(q.FromCollection)
	for _, j := range q.Joins {
		b.WriteString(" ")
		b.WriteString(j.String())
	}
	if len(q.Where) > 0 {
		b.WriteString(" WHERE ")
		for i, c := range q.Where {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString(c.String())
		}
	}
	if len(q.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range q.OrderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(o.String())
		}
	}
	if q.Limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*q.Limit))
	}
	return b.String()
}

// token kinds produced by the lexer
type tokenKind int

const (
	tokWord tokenKind = iota
	tokString
	tokNumber
	tokParam
	tokSymbol // , . = != > >= < <= *
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Parse turns restricted-SQL query text into a typed AST. The supported
// grammar is:
//
//	SELECT <field>[, <field>...] FROM <collection>
//	  [JOIN <collection> ON <t>.<f> = <t>.<f>]*
//	  [WHERE <cond> [AND <cond>]*]
//	  [ORDER BY <field> [ASC|DESC][, ...]]
//	  [LIMIT <int>]
//
// Anything outside the grammar (OR, parentheses, subqueries, aggregates) is
// a syntax error rather than a silent partial match.
func Parse(text string) (*ParsedQuery, error) {
	tokens, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, input: text}
	return p.parseQuery()
}

func lex(text string) ([]token, error) {
	var tokens []token
	runes := []rune(text)
	i := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			var sb strings.Builder
			closed := false
			for j < len(runes) {
				if runes[j] == quote {
					// doubled quote escapes itself
					if j+1 < len(runes) && runes[j+1] == quote {
						sb.WriteRune(quote)
						j += 2
						continue
					}
					closed = true
					break
				}
				sb.WriteRune(runes[j])
				j++
			}
			if !closed {
				return nil, tessera.NewSyntaxError(fmt.Sprintf("unterminated string literal at position %d", i))
			}
			tokens = append(tokens, token{kind: tokString, text: sb.String(), pos: i})
			i = j + 1
		case c == ':':
			j := i + 1
			for j < len(runes) && isIdentRune(runes[j]) {
				j++
			}
			if j == i+1 {
				return nil, tessera.NewSyntaxError(fmt.Sprintf("empty parameter name at position %d", i))
			}
			tokens = append(tokens, token{kind: tokParam, text: string(runes[i+1 : j]), pos: i})
			i = j
		case c == '!' || c == '>' || c == '<':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{kind: tokSymbol, text: string(runes[i : i+2]), pos: i})
				i += 2
			} else if c == '!' {
				return nil, tessera.NewSyntaxError(fmt.Sprintf("unexpected '!' at position %d", i))
			} else {
				tokens = append(tokens, token{kind: tokSymbol, text: string(c), pos: i})
				i++
			}
		case c == '=' || c == ',' || c == '.' || c == '*':
			tokens = append(tokens, token{kind: tokSymbol, text: string(c), pos: i})
			i++
		case c >= '0' && c <= '9' || (c == '-' && i+1 < len(runes) && runes[i+1] >= '0' && runes[i+1] <= '9'):
			j := i + 1
			for j < len(runes) && (runes[j] >= '0' && runes[j] <= '9' || runes[j] == '.') {
				j++
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(runes[i:j]), pos: i})
			i = j
		case isIdentRune(c):
			j := i
			for j < len(runes) && isIdentRune(runes[j]) {
				j++
			}
			tokens = append(tokens, token{kind: tokWord, text: string(runes[i:j]), pos: i})
			i = j
		default:
			return nil, tessera.NewSyntaxError(fmt.Sprintf("unexpected character %q at position %d", c, i))
		}
	}
	return tokens, nil
}

func isIdentRune(c rune) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

type parser struct {
	tokens []token
	pos    int
	input  string
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *parser) peekKeyword(word string) bool {
	t, ok := p.peek()
	return ok && t.kind == tokWord && strings.EqualFold(t.text, word)
}

func (p *parser) acceptKeyword(word string) bool {
	if p.peekKeyword(word) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectKeyword(word string) error {
	if !p.acceptKeyword(word) {
		return tessera.NewSyntaxError(fmt.Sprintf("expected %s clause in query: %s", word, p.input))
	}
	return nil
}

func (p *parser) acceptSymbol(sym string) bool {
	t, ok := p.peek()
	if ok && t.kind == tokSymbol && t.text == sym {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseQuery() (*ParsedQuery, error) {
	q := &ParsedQuery{}
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	fields, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}
	q.SelectFields = fields

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	from, err := p.parseIdent("collection name after FROM")
	if err != nil {
		return nil, err
	}
	q.FromCollection = from

	for p.acceptKeyword("JOIN") {
		join, err := p.parseJoin()
		if err != nil {
			return nil, err
		}
		q.Joins = append(q.Joins, *join)
	}

	if p.acceptKeyword("WHERE") {
		conds, err := p.parseWhere()
		if err != nil {
			return nil, err
		}
		q.Where = conds
	}

	if p.acceptKeyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		keys, err := p.parseOrderBy()
		if err != nil {
			return nil, err
		}
		q.OrderBy = keys
	}

	if p.acceptKeyword("LIMIT") {
		t, ok := p.next()
		if !ok || t.kind != tokNumber {
			return nil, tessera.NewSyntaxError("LIMIT requires an integer")
		}
		n, err := strconv.Atoi(t.text)
		if err != nil || n < 0 {
			return nil, tessera.NewSyntaxError(fmt.Sprintf("invalid LIMIT value '%s'", t.text))
		}
		q.Limit = &n
	}

	if t, ok := p.peek(); ok {
		return nil, tessera.NewSyntaxError(fmt.Sprintf("unsupported trailing syntax near '%s' at position %d", t.text, t.pos))
	}
	return q, nil
}

func (p *parser) parseSelectList() ([]FieldRef, error) {
	var fields []FieldRef
	for {
		if p.acceptSymbol("*") {
			fields = append(fields, FieldRef{Name: "*"})
		} else {
			ref, err := p.parseFieldRef("select field")
			if err != nil {
				return nil, err
			}
			fields = append(fields, *ref)
		}
		if !p.acceptSymbol(",") {
			break
		}
	}
	return fields, nil
}

func (p *parser) parseIdent(what string) (string, error) {
	t, ok := p.next()
	if !ok || t.kind != tokWord || isReservedWord(t.text) {
		return "", tessera.NewSyntaxError(fmt.Sprintf("expected %s", what))
	}
	return t.text, nil
}

func (p *parser) parseFieldRef(what string) (*FieldRef, error) {
	name, err := p.parseIdent(what)
	if err != nil {
		return nil, err
	}
	if p.acceptSymbol(".") {
		field, err := p.parseIdent("field name after '.'")
		if err != nil {
			return nil, err
		}
		return &FieldRef{Table: name, Name: field}, nil
	}
	return &FieldRef{Name: name}, nil
}

func (p *parser) parseJoin() (*JoinClause, error) {
	collection, err := p.parseIdent("collection name after JOIN")
	if err != nil {
		return nil, err
	}
	if !p.acceptKeyword("ON") {
		return nil, tessera.NewJoinConditionError(fmt.Sprintf("JOIN %s without ON", collection))
	}
	left, err := p.parseFieldRef("join condition")
	if err != nil || left.Table == "" {
		return nil, tessera.NewJoinConditionError(fmt.Sprintf("JOIN %s ON ...", collection))
	}
	if !p.acceptSymbol("=") {
		return nil, tessera.NewJoinConditionError(fmt.Sprintf("JOIN %s ON %s ...", collection, left))
	}
	right, err := p.parseFieldRef("join condition")
	if err != nil || right.Table == "" {
		return nil, tessera.NewJoinConditionError(fmt.Sprintf("JOIN %s ON %s = ...", collection, left))
	}
	return &JoinClause{Collection: collection, Left: *left, Right: *right}, nil
}

func (p *parser) parseWhere() ([]Condition, error) {
	var conds []Condition
	for {
		if p.peekKeyword("OR") {
			return nil, tessera.NewSyntaxError("OR is not supported in WHERE; only AND conjunctions are allowed")
		}
		field, err := p.parseFieldRef("condition field")
		if err != nil {
			return nil, err
		}
		op, err := p.parseOperator()
		if err != nil {
			return nil, err
		}
		operand, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		conds = append(conds, Condition{Field: *field, Op: op, Value: *operand})

		if p.acceptKeyword("AND") {
			continue
		}
		if p.peekKeyword("OR") {
			return nil, tessera.NewSyntaxError("OR is not supported in WHERE; only AND conjunctions are allowed")
		}
		break
	}
	return conds, nil
}

func (p *parser) parseOperator() (Operator, error) {
	t, ok := p.next()
	if !ok || t.kind != tokSymbol {
		return "", tessera.NewSyntaxError("expected comparison operator in WHERE condition")
	}
	switch t.text {
	case "=", "!=", ">", ">=", "<", "<=":
		return Operator(t.text), nil
	default:
		return "", tessera.NewSyntaxError(fmt.Sprintf("unsupported operator '%s'", t.text))
	}
}

func (p *parser) parseOperand() (*Operand, error) {
	t, ok := p.next()
	if !ok {
		return nil, tessera.NewSyntaxError("missing value in WHERE condition")
	}
	switch t.kind {
	case tokString:
		return &Operand{Kind: OperandLiteral, Literal: tessera.String(t.text)}, nil
	case tokNumber:
		n, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, tessera.NewSyntaxError(fmt.Sprintf("invalid number '%s'", t.text))
		}
		return &Operand{Kind: OperandLiteral, Literal: tessera.Number(n)}, nil
	case tokParam:
		return &Operand{Kind: OperandParam, Param: t.text}, nil
	case tokWord:
		if strings.EqualFold(t.text, "true") {
			return &Operand{Kind: OperandLiteral, Literal: tessera.Bool(true)}, nil
		}
		if strings.EqualFold(t.text, "false") {
			return &Operand{Kind: OperandLiteral, Literal: tessera.Bool(false)}, nil
		}
		if strings.EqualFold(t.text, "null") {
			return &Operand{Kind: OperandLiteral, Literal: tessera.Null()}, nil
		}
		if isReservedWord(t.text) {
			return nil, tessera.NewSyntaxError(fmt.Sprintf("unexpected keyword '%s' in WHERE condition", t.text))
		}
		// bare identifier: field-to-field comparison on the same row
		if p.acceptSymbol(".") {
			field, err := p.parseIdent("field name after '.'")
			if err != nil {
				return nil, err
			}
			return &Operand{Kind: OperandField, Field: FieldRef{Table: t.text, Name: field}}, nil
		}
		return &Operand{Kind: OperandField, Field: FieldRef{Name: t.text}}, nil
	default:
		return nil, tessera.NewSyntaxError(fmt.Sprintf("unexpected token '%s' in WHERE condition", t.text))
	}
}

func (p *parser) parseOrderBy() ([]OrderKey, error) {
	var keys []OrderKey
	for {
		field, err := p.parseFieldRef("ORDER BY field")
		if err != nil {
			return nil, err
		}
		key := OrderKey{Field: *field}
		if p.acceptKeyword("DESC") {
			key.Desc = true
		} else {
			p.acceptKeyword("ASC")
		}
		keys = append(keys, key)
		if !p.acceptSymbol(",") {
			break
		}
	}
	return keys, nil
}

var reservedWords = map[string]struct{}{
	"select": {}, "from": {}, "join": {}, "on": {}, "where": {}, "and": {},
	"or": {}, "order": {}, "by": {}, "asc": {}, "desc": {}, "limit": {},
	"group": {}, "having": {}, "union": {},
}

func isReservedWord(word string) bool {
	_, ok := reservedWords[strings.ToLower(word)]
	return ok
}
