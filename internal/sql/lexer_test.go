package sql

import (
	"errors"
	"testing"
)

func lexAll(t *testing.T, input string) []Token {
	t.Helper()
	l := NewLexer(input)
	var out []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("NextToken() error = %v", err)
		}
		if tok.Type == TokenEOF {
			return out
		}
		out = append(out, tok)
	}
}

func TestLexKeywordsAndIdents(t *testing.T) {
	toks := lexAll(t, "SELECT id FROM users;")

	want := []TokenType{TokenSelect, TokenIdent, TokenFrom, TokenIdent, TokenSemicolon}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, typ := range want {
		if toks[i].Type != typ {
			t.Errorf("token %d = %s, want %s", i, toks[i].Type, typ)
		}
	}
	if toks[1].Literal != "id" || toks[3].Literal != "users" {
		t.Errorf("identifier literals = %q, %q", toks[1].Literal, toks[3].Literal)
	}
}

func TestLexKeywordsCaseInsensitive(t *testing.T) {
	toks := lexAll(t, "select Insert CREATE vAlUeS")
	want := []TokenType{TokenSelect, TokenInsert, TokenCreate, TokenValues}
	for i, typ := range want {
		if toks[i].Type != typ {
			t.Errorf("token %d = %s, want %s", i, toks[i].Type, typ)
		}
	}
	// Identifier case is preserved for display.
	if toks[1].Literal != "Insert" {
		t.Errorf("literal = %q, want original spelling", toks[1].Literal)
	}
}

func TestLexIndexAndOnAreIdentifiers(t *testing.T) {
	toks := lexAll(t, "CREATE INDEX ix ON users(id)")
	if toks[1].Type != TokenIdent || toks[3].Type != TokenIdent {
		t.Errorf("INDEX/ON should lex as identifiers, got %s/%s", toks[1].Type, toks[3].Type)
	}
}

func TestLexOperators(t *testing.T) {
	toks := lexAll(t, "= <> < <= > >= + - * / , ( )")
	want := []TokenType{
		TokenEq, TokenNe, TokenLt, TokenLe, TokenGt, TokenGe,
		TokenPlus, TokenMinus, TokenStar, TokenSlash,
		TokenComma, TokenLParen, TokenRParen,
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, typ := range want {
		if toks[i].Type != typ {
			t.Errorf("token %d = %s, want %s", i, toks[i].Type, typ)
		}
	}
}

func TestLexNumberAndString(t *testing.T) {
	toks := lexAll(t, "42 'hello world' ''")
	if toks[0].Type != TokenNumber || toks[0].Int != 42 {
		t.Errorf("number token = %+v", toks[0])
	}
	if toks[1].Type != TokenString || toks[1].Literal != "hello world" {
		t.Errorf("string token = %+v", toks[1])
	}
	if toks[2].Type != TokenString || toks[2].Literal != "" {
		t.Errorf("empty string token = %+v", toks[2])
	}
}

func TestLexLineComments(t *testing.T) {
	toks := lexAll(t, "SELECT -- the projection\nid")
	if len(toks) != 2 || toks[1].Type != TokenIdent {
		t.Fatalf("tokens = %v", toks)
	}
	if toks[1].Line != 2 || toks[1].Col != 1 {
		t.Errorf("position = %d:%d, want 2:1", toks[1].Line, toks[1].Col)
	}
}

func TestLexPositions(t *testing.T) {
	toks := lexAll(t, "SELECT id\nFROM t")
	if toks[0].Line != 1 || toks[0].Col != 1 {
		t.Errorf("SELECT at %d:%d", toks[0].Line, toks[0].Col)
	}
	if toks[1].Line != 1 || toks[1].Col != 8 {
		t.Errorf("id at %d:%d, want 1:8", toks[1].Line, toks[1].Col)
	}
	if toks[2].Line != 2 || toks[2].Col != 1 {
		t.Errorf("FROM at %d:%d, want 2:1", toks[2].Line, toks[2].Col)
	}
}

func TestLexErrors(t *testing.T) {
	cases := []struct {
		input string
		line  int
		col   int
	}{
		{"SELECT @", 1, 8},
		{"'unterminated", 1, 1},
		{"99999999999999999999", 1, 1},
	}
	for _, c := range cases {
		l := NewLexer(c.input)
		var err error
		for err == nil {
			var tok Token
			tok, err = l.NextToken()
			if err == nil && tok.Type == TokenEOF {
				t.Fatalf("input %q lexed without error", c.input)
			}
		}
		var serr *SyntaxError
		if !errors.As(err, &serr) {
			t.Fatalf("error type = %T", err)
		}
		if serr.Line != c.line || serr.Col != c.col {
			t.Errorf("input %q error at %d:%d, want %d:%d", c.input, serr.Line, serr.Col, c.line, c.col)
		}
	}
}
