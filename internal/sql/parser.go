package sql

import (
	"strings"

	"pagedb/pkg/types"
)

// Parser is a recursive-descent parser over the lexer's token stream.
type Parser struct {
	lexer   *Lexer
	current Token
	peek    Token
}

// NewParser creates a parser and primes the token window.
func NewParser(input string) (*Parser, error) {
	p := &Parser{lexer: NewLexer(input)}
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) next() error {
	p.current = p.peek
	tok, err := p.lexer.NextToken()
	if err != nil {
		return err
	}
	p.peek = tok
	return nil
}

func (p *Parser) expect(typ TokenType) (Token, error) {
	if p.current.Type != typ {
		return Token{}, errAt(p.current.Line, p.current.Col,
			"expected %s, found %s", typ, describe(p.current))
	}
	tok := p.current
	if err := p.next(); err != nil {
		return Token{}, err
	}
	return tok, nil
}

// expectIdentFold consumes an identifier whose spelling matches word
// case-insensitively. Used for INDEX and ON, which are not lexer
// keywords.
func (p *Parser) expectIdentFold(word string) error {
	if p.current.Type != TokenIdent || !strings.EqualFold(p.current.Literal, word) {
		return errAt(p.current.Line, p.current.Col,
			"expected %s, found %s", word, describe(p.current))
	}
	return p.next()
}

func describe(tok Token) string {
	switch tok.Type {
	case TokenEOF:
		return "end of input"
	case TokenIdent, TokenNumber, TokenString:
		return "'" + tok.Literal + "'"
	default:
		return "'" + tok.Type.String() + "'"
	}
}

// ParseStatement parses one statement including its trailing semicolon.
func (p *Parser) ParseStatement() (Statement, error) {
	var stmt Statement
	var err error

	switch p.current.Type {
	case TokenCreate:
		stmt, err = p.parseCreate()
	case TokenInsert:
		stmt, err = p.parseInsert()
	case TokenSelect:
		stmt, err = p.parseSelect()
	case TokenUpdate, TokenDelete:
		return nil, errAt(p.current.Line, p.current.Col,
			"%s is not supported", p.current.Type)
	default:
		return nil, errAt(p.current.Line, p.current.Col,
			"expected a statement, found %s", describe(p.current))
	}
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(TokenSemicolon); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseCreate() (Statement, error) {
	if err := p.next(); err != nil { // consume CREATE
		return nil, err
	}

	if p.current.Type == TokenTable {
		return p.parseCreateTable()
	}
	if p.current.Type == TokenIdent && strings.EqualFold(p.current.Literal, "INDEX") {
		return p.parseCreateIndex()
	}
	return nil, errAt(p.current.Line, p.current.Col,
		"expected TABLE or INDEX after CREATE, found %s", describe(p.current))
}

func (p *Parser) parseCreateTable() (Statement, error) {
	if err := p.next(); err != nil { // consume TABLE
		return nil, err
	}

	name, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	var cols []ColumnDef
	for {
		colName, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		typeTok, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		var colType types.ValueType
		switch strings.ToUpper(typeTok.Literal) {
		case "INT":
			colType = types.Int64
		case "VARCHAR":
			colType = types.Varchar
		default:
			return nil, errAt(typeTok.Line, typeTok.Col,
				"unknown column type '%s'", typeTok.Literal)
		}
		cols = append(cols, ColumnDef{Name: colName.Literal, Type: colType})

		if p.current.Type == TokenComma {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return &CreateTableStmt{Name: name.Literal, Columns: cols}, nil
}

func (p *Parser) parseCreateIndex() (Statement, error) {
	if err := p.next(); err != nil { // consume INDEX
		return nil, err
	}

	name, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	if err := p.expectIdentFold("ON"); err != nil {
		return nil, err
	}
	table, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	column, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	return &CreateIndexStmt{Name: name.Literal, Table: table.Literal, Column: column.Literal}, nil
}

func (p *Parser) parseInsert() (Statement, error) {
	if err := p.next(); err != nil { // consume INSERT
		return nil, err
	}
	if _, err := p.expect(TokenInto); err != nil {
		return nil, err
	}

	table, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	var cols []string
	for {
		col, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col.Literal)
		if p.current.Type == TokenComma {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	if _, err := p.expect(TokenValues); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	var values []Expr
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		values = append(values, expr)
		if p.current.Type == TokenComma {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	return &InsertStmt{Table: table.Literal, Columns: cols, Values: values}, nil
}

func (p *Parser) parseSelect() (Statement, error) {
	if err := p.next(); err != nil { // consume SELECT
		return nil, err
	}

	var exprs []Expr
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
		if p.current.Type == TokenComma {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	if _, err := p.expect(TokenFrom); err != nil {
		return nil, err
	}
	table, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}

	var where Expr
	if p.current.Type == TokenWhere {
		if err := p.next(); err != nil {
			return nil, err
		}
		if where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}

	return &SelectStmt{Exprs: exprs, Table: table.Literal, Where: where}, nil
}

// Expression grammar, loosest first: OR, then AND, then comparison, then
// primary. Arithmetic tokens exist in the lexer but have no production.
func (p *Parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenOr {
		op := p.current.Type
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenAnd {
		op := p.current.Type
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func isComparisonOp(typ TokenType) bool {
	switch typ {
	case TokenEq, TokenNe, TokenLt, TokenLe, TokenGt, TokenGe:
		return true
	}
	return false
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for isComparisonOp(p.current.Type) {
		op := p.current.Type
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parsePrimary() (Expr, error) {
	switch p.current.Type {
	case TokenIdent:
		e := &Ident{Name: p.current.Literal, Line: p.current.Line, Col: p.current.Col}
		if err := p.next(); err != nil {
			return nil, err
		}
		return e, nil
	case TokenNumber:
		e := &IntLit{Value: p.current.Int}
		if err := p.next(); err != nil {
			return nil, err
		}
		return e, nil
	case TokenString:
		e := &StrLit{Value: p.current.Literal}
		if err := p.next(); err != nil {
			return nil, err
		}
		return e, nil
	case TokenLParen:
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil
	default:
		return nil, errAt(p.current.Line, p.current.Col,
			"expected an expression, found %s", describe(p.current))
	}
}
