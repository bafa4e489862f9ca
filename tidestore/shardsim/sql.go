package shardsim

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/tidestore/tidestore-go/tidestore"
)

// The simulator understands a small SELECT dialect, enough to compile
// every driver-side plan shape:
//
//	SELECT * | item [, item ...]
//	FROM table
//	[WHERE field cmp literal]
//	[GROUP BY field [, field ...]]
//	[ORDER BY field [ASC|DESC] [NULLS FIRST|LAST] [, ...]]
//	[LIMIT n] [OFFSET n]
//
// where item is a field, an arithmetic expression over fields, literals
// and $variables, or SUM/MIN/MAX/COUNT(field) / COUNT(*), optionally
// aliased with AS.

type selectStmt struct {
	star    bool
	items   []selectItem
	table   string
	where   *whereCond
	groupBy []string
	orderBy []orderTerm
	limit   int
	offset  int
}

type selectItem struct {
	alias string
	expr  expr
}

type expr interface{}

type colRef struct{ name string }

type literal struct{ val tidestore.Value }

type bindRef struct{ name string }

type aggrExpr struct {
	fn   string // SUM, MIN, MAX, COUNT
	arg  string
	star bool
}

type arithExpr struct {
	op          byte // '+', '-', '*', '/'
	left, right expr
}

type whereCond struct {
	field string
	op    string // =, !=, <, <=, >, >=
	val   tidestore.Value
}

type orderTerm struct {
	field string
	spec  tidestore.SortSpec
}

type token struct {
	kind tokenKind
	text string
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokSymbol
	tokBind
	tokEOF
)

type lexer struct {
	input string
	pos   int
	toks  []token
}

func tokenize(input string) ([]token, error) {
	l := &lexer{input: input}
	for {
		l.skipSpace()
		if l.pos >= len(l.input) {
			l.toks = append(l.toks, token{kind: tokEOF})
			return l.toks, nil
		}
		ch := l.input[l.pos]
		switch {
		case isIdentStart(ch):
			l.lexIdent()
		case ch >= '0' && ch <= '9':
			l.lexNumber()
		case ch == '\'':
			if err := l.lexString(); err != nil {
				return nil, err
			}
		case ch == '$':
			l.pos++
			if l.pos >= len(l.input) || !isIdentStart(l.input[l.pos]) {
				return nil, tidestore.NewIllegalArgument("expected variable name after $")
			}
			start := l.pos
			for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
				l.pos++
			}
			l.toks = append(l.toks, token{kind: tokBind, text: l.input[start:l.pos]})
		case strings.ContainsRune("<>!", rune(ch)):
			sym := string(ch)
			l.pos++
			if l.pos < len(l.input) && l.input[l.pos] == '=' {
				sym += "="
				l.pos++
			}
			if sym == "!" {
				return nil, tidestore.NewIllegalArgument("unexpected character %q", ch)
			}
			l.toks = append(l.toks, token{kind: tokSymbol, text: sym})
		case strings.ContainsRune("*,()=+-/", rune(ch)):
			l.toks = append(l.toks, token{kind: tokSymbol, text: string(ch)})
			l.pos++
		default:
			return nil, tidestore.NewIllegalArgument("unexpected character %q", ch)
		}
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

func (l *lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	l.toks = append(l.toks, token{kind: tokIdent, text: l.input[start:l.pos]})
}

func (l *lexer) lexNumber() {
	start := l.pos
	for l.pos < len(l.input) &&
		(l.input[l.pos] >= '0' && l.input[l.pos] <= '9' || l.input[l.pos] == '.') {
		l.pos++
	}
	l.toks = append(l.toks, token{kind: tokNumber, text: l.input[start:l.pos]})
}

func (l *lexer) lexString() error {
	l.pos++
	start := l.pos
	for l.pos < len(l.input) && l.input[l.pos] != '\'' {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return tidestore.NewIllegalArgument("unterminated string literal")
	}
	l.toks = append(l.toks, token{kind: tokString, text: l.input[start:l.pos]})
	l.pos++
	return nil
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || ch >= '0' && ch <= '9'
}

type parser struct {
	toks []token
	pos  int
}

// parseSelect parses one statement of the simulator dialect.
func parseSelect(input string) (*selectStmt, error) {
	toks, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	stmt := &selectStmt{limit: -1, offset: -1}

	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	if p.acceptSymbol("*") {
		stmt.star = true
	} else {
		for {
			item, err := p.parseSelectItem()
			if err != nil {
				return nil, err
			}
			stmt.items = append(stmt.items, *item)
			if !p.acceptSymbol(",") {
				break
			}
		}
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	stmt.table, err = p.expectIdent()
	if err != nil {
		return nil, err
	}

	if p.acceptKeyword("WHERE") {
		stmt.where, err = p.parseWhere()
		if err != nil {
			return nil, err
		}
	}
	if p.acceptKeyword("GROUP") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			field, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			stmt.groupBy = append(stmt.groupBy, field)
			if !p.acceptSymbol(",") {
				break
			}
		}
	}
	if p.acceptKeyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			term, err := p.parseOrderTerm()
			if err != nil {
				return nil, err
			}
			stmt.orderBy = append(stmt.orderBy, *term)
			if !p.acceptSymbol(",") {
				break
			}
		}
	}
	if p.acceptKeyword("LIMIT") {
		stmt.limit, err = p.expectInt()
		if err != nil {
			return nil, err
		}
	}
	if p.acceptKeyword("OFFSET") {
		stmt.offset, err = p.expectInt()
		if err != nil {
			return nil, err
		}
	}
	if p.toks[p.pos].kind != tokEOF {
		return nil, tidestore.NewIllegalArgument(
			"unexpected input after statement: %q", p.toks[p.pos].text)
	}
	return stmt, nil
}

func (p *parser) parseSelectItem() (*selectItem, error) {
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	item := &selectItem{expr: e}
	if p.acceptKeyword("AS") {
		item.alias, err = p.expectIdent()
		if err != nil {
			return nil, err
		}
	}
	return item, nil
}

// parseExpr parses additive expressions with the usual precedence.
func (p *parser) parseExpr() (expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		var op byte
		switch {
		case p.acceptSymbol("+"):
			op = '+'
		case p.acceptSymbol("-"):
			op = '-'
		default:
			return left, nil
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &arithExpr{op: op, left: left, right: right}
	}
}

func (p *parser) parseTerm() (expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		var op byte
		switch {
		case p.acceptSymbol("*"):
			op = '*'
		case p.acceptSymbol("/"):
			op = '/'
		default:
			return left, nil
		}
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &arithExpr{op: op, left: left, right: right}
	}
}

func (p *parser) parsePrimary() (expr, error) {
	tok := p.toks[p.pos]
	switch tok.kind {
	case tokNumber:
		p.pos++
		return &literal{val: parseNumber(tok.text)}, nil
	case tokString:
		p.pos++
		return &literal{val: tok.text}, nil
	case tokBind:
		p.pos++
		return &bindRef{name: tok.text}, nil
	case tokIdent:
		upper := strings.ToUpper(tok.text)
		switch upper {
		case "SUM", "MIN", "MAX", "COUNT":
			p.pos++
			if err := p.expectSymbol("("); err != nil {
				return nil, err
			}
			a := &aggrExpr{fn: upper}
			if p.acceptSymbol("*") {
				if upper != "COUNT" {
					return nil, tidestore.NewIllegalArgument("%s(*) is not supported", upper)
				}
				a.star = true
			} else {
				arg, err := p.expectIdent()
				if err != nil {
					return nil, err
				}
				a.arg = arg
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			return a, nil
		case "TRUE":
			p.pos++
			return &literal{val: true}, nil
		case "FALSE":
			p.pos++
			return &literal{val: false}, nil
		case "NULL":
			p.pos++
			return &literal{val: nil}, nil
		}
		p.pos++
		return &colRef{name: tok.text}, nil
	}
	if tok.kind == tokSymbol && tok.text == "(" {
		p.pos++
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, tidestore.NewIllegalArgument("unexpected token %q", tok.text)
}

func (p *parser) parseWhere() (*whereCond, error) {
	field, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	tok := p.toks[p.pos]
	if tok.kind != tokSymbol {
		return nil, tidestore.NewIllegalArgument("expected comparison operator, got %q", tok.text)
	}
	switch tok.text {
	case "=", "!=", "<", "<=", ">", ">=":
	default:
		return nil, tidestore.NewIllegalArgument("unsupported operator %q", tok.text)
	}
	p.pos++
	val, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return &whereCond{field: field, op: tok.text, val: val}, nil
}

func (p *parser) parseLiteral() (tidestore.Value, error) {
	tok := p.toks[p.pos]
	switch tok.kind {
	case tokNumber:
		p.pos++
		return parseNumber(tok.text), nil
	case tokString:
		p.pos++
		return tok.text, nil
	case tokIdent:
		switch strings.ToUpper(tok.text) {
		case "TRUE":
			p.pos++
			return true, nil
		case "FALSE":
			p.pos++
			return false, nil
		case "NULL":
			p.pos++
			return nil, nil
		}
	}
	return nil, tidestore.NewIllegalArgument("expected literal, got %q", tok.text)
}

func (p *parser) parseOrderTerm() (*orderTerm, error) {
	field, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	term := &orderTerm{field: field}
	if p.acceptKeyword("DESC") {
		term.spec.IsDesc = true
	} else {
		p.acceptKeyword("ASC")
	}
	if p.acceptKeyword("NULLS") {
		switch {
		case p.acceptKeyword("FIRST"):
			term.spec.NullsFirst = true
		case p.acceptKeyword("LAST"):
			term.spec.NullsFirst = false
		default:
			return nil, tidestore.NewIllegalArgument("expected FIRST or LAST after NULLS")
		}
	} else {
		// Default placement follows the direction: last for ascending,
		// first for descending.
		term.spec.NullsFirst = term.spec.IsDesc
	}
	return term, nil
}

func parseNumber(text string) tidestore.Value {
	if strings.Contains(text, ".") {
		f, _ := strconv.ParseFloat(text, 64)
		return f
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		f, _ := strconv.ParseFloat(text, 64)
		return f
	}
	if n >= -1<<31 && n < 1<<31 {
		return int(n)
	}
	return n
}

func (p *parser) acceptKeyword(kw string) bool {
	tok := p.toks[p.pos]
	if tok.kind == tokIdent && strings.EqualFold(tok.text, kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectKeyword(kw string) error {
	if !p.acceptKeyword(kw) {
		return tidestore.NewIllegalArgument("expected %s, got %q", kw, p.toks[p.pos].text)
	}
	return nil
}

func (p *parser) acceptSymbol(sym string) bool {
	tok := p.toks[p.pos]
	if tok.kind == tokSymbol && tok.text == sym {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectSymbol(sym string) error {
	if !p.acceptSymbol(sym) {
		return tidestore.NewIllegalArgument("expected %q, got %q", sym, p.toks[p.pos].text)
	}
	return nil
}

func (p *parser) expectIdent() (string, error) {
	tok := p.toks[p.pos]
	if tok.kind != tokIdent {
		return "", tidestore.NewIllegalArgument("expected identifier, got %q", tok.text)
	}
	p.pos++
	return tok.text, nil
}

func (p *parser) expectInt() (int, error) {
	tok := p.toks[p.pos]
	if tok.kind != tokNumber {
		return 0, tidestore.NewIllegalArgument("expected number, got %q", tok.text)
	}
	n, err := strconv.Atoi(tok.text)
	if err != nil {
		return 0, tidestore.NewIllegalArgument("expected integer, got %q", tok.text)
	}
	p.pos++
	return n, nil
}
