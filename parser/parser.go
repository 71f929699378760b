// Package parser turns Dhall source text into an ast.Expr tree.
package parser

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/clavoie-takt/dhall/ast"
	"github.com/clavoie-takt/dhall/lexer"
)

// Error is a structured parse error.
type Error struct {
	Message string
	Line    int
	Column  int
	Near    lexer.Token
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Column, e.Message)
}

// Parser parses Dhall source code into an AST
type Parser struct {
	l         *lexer.Lexer
	curToken  lexer.Token
	peekToken lexer.Token
	errors    []error

	prefixParseFns map[lexer.TokenType]prefixParseFn
	infixParseFns  map[lexer.TokenType]infixParseFn
}

type (
	prefixParseFn func() ast.Expr
	infixParseFn  func(ast.Expr) ast.Expr
)

// Precedence levels, loosest first.
const (
	LOWEST int = iota
	ANNOT      // e : T
	ARROW      // A → B
	ALTERNATIVE
	LogicalOr  // ||
	LogicalAnd // &&
	EQUALS     // ==, !=
	APPEND     // ++
	APPLY      // f x (juxtaposition)
	SELECT     // r.field
)

var precedences = map[lexer.TokenType]int{
	lexer.COLON:    ANNOT,
	lexer.ARROW:    ARROW,
	lexer.QUESTION: ALTERNATIVE,
	lexer.OR:       LogicalOr,
	lexer.AND:      LogicalAnd,
	lexer.EQ:       EQUALS,
	lexer.NEQ:      EQUALS,
	lexer.APPEND:   APPEND,
	lexer.DOT:      SELECT,
}

// builtins maps identifier spellings to built-in expressions.
var builtins = map[string]ast.Expr{
	"Bool":    ast.Bool,
	"Integer": ast.Integer,
	"Text":    ast.Text,
	"List":    ast.List,
	"Type":    ast.Type,
	"Kind":    ast.Kind,
}

// New creates a new Parser
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}

	p.prefixParseFns = map[lexer.TokenType]prefixParseFn{
		lexer.IDENT:    p.parseIdent,
		lexer.INT:      p.parseInteger,
		lexer.STRING:   p.parseText,
		lexer.TRUE:     p.parseBool,
		lexer.FALSE:    p.parseBool,
		lexer.LAMBDA:   p.parseLambda,
		lexer.FORALL:   p.parseForall,
		lexer.LET:      p.parseLet,
		lexer.LPAREN:   p.parseGroup,
		lexer.LBRACKET: p.parseList,
		lexer.LBRACE:   p.parseRecord,
		lexer.PATH:     p.parseImport,
		lexer.URL:      p.parseImport,
		lexer.ENV:      p.parseImport,
		lexer.MISSING:  p.parseImport,
	}
	p.infixParseFns = map[lexer.TokenType]infixParseFn{
		lexer.COLON:    p.parseAnnot,
		lexer.ARROW:    p.parseArrow,
		lexer.QUESTION: p.parseOp(ast.OpImportAlt),
		lexer.OR:       p.parseOp(ast.OpBoolOr),
		lexer.AND:      p.parseOp(ast.OpBoolAnd),
		lexer.EQ:       p.parseOp(ast.OpBoolEq),
		lexer.NEQ:      p.parseOp(ast.OpBoolNe),
		lexer.APPEND:   p.parseOp(ast.OpTextAppend),
		lexer.DOT:      p.parseSelect,
	}

	// Prime curToken and peekToken.
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses src as a single complete expression followed by end of
// input.
func Parse(src string) (ast.Expr, error) {
	p := New(lexer.New(src))
	expr := p.ParseExpression()
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	if p.curToken.Type != lexer.EOF {
		return nil, &Error{
			Message: fmt.Sprintf("unexpected %s after expression", p.curToken.Type),
			Line:    p.curToken.Line,
			Column:  p.curToken.Column,
			Near:    p.curToken,
		}
	}
	return expr, nil
}

// ParseExpression parses one expression and leaves the parser positioned on
// the first token after it.
func (p *Parser) ParseExpression() ast.Expr {
	expr := p.parseExpression(LOWEST)
	p.nextToken()
	return expr
}

// Errors returns the accumulated parse errors.
func (p *Parser) Errors() []error { return p.errors }

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) errorf(tok lexer.Token, format string, args ...interface{}) {
	p.errors = append(p.errors, &Error{
		Message: fmt.Sprintf(format, args...),
		Line:    tok.Line,
		Column:  tok.Column,
		Near:    tok,
	})
}

func (p *Parser) expectPeek(t lexer.TokenType) bool {
	if p.peekToken.Type == t {
		p.nextToken()
		return true
	}
	p.errorf(p.peekToken, "expected %s, found %s", t, p.peekToken.Type)
	return false
}

// atomStart reports whether a token can begin an application argument.
func atomStart(t lexer.TokenType) bool {
	switch t {
	case lexer.IDENT, lexer.INT, lexer.STRING, lexer.TRUE, lexer.FALSE,
		lexer.LPAREN, lexer.LBRACKET, lexer.LBRACE,
		lexer.PATH, lexer.URL, lexer.ENV, lexer.MISSING:
		return true
	}
	return false
}

func (p *Parser) parseExpression(precedence int) ast.Expr {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.errorf(p.curToken, "unexpected %s", p.curToken.Type)
		return nil
	}
	left := prefix()

	for left != nil {
		switch {
		case p.peekPrecedence() > precedence:
			infix := p.infixParseFns[p.peekToken.Type]
			if infix == nil {
				return left
			}
			p.nextToken()
			left = infix(left)
		case precedence < APPLY && atomStart(p.peekToken.Type):
			p.nextToken()
			arg := p.parseExpression(APPLY)
			if arg == nil {
				return nil
			}
			left = ast.App{Fn: left, Arg: arg}
		default:
			return left
		}
	}
	return nil
}

func (p *Parser) parseIdent() ast.Expr {
	if b, ok := builtins[p.curToken.Literal]; ok {
		return b
	}
	return ast.Var{Name: p.curToken.Literal}
}

func (p *Parser) parseInteger() ast.Expr {
	n, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
	if err != nil {
		p.errorf(p.curToken, "invalid integer literal %q", p.curToken.Literal)
		return nil
	}
	return ast.IntegerLit(n)
}

func (p *Parser) parseText() ast.Expr {
	return ast.TextLit(p.curToken.Literal)
}

func (p *Parser) parseBool() ast.Expr {
	return ast.BoolLit(p.curToken.Type == lexer.TRUE)
}

// parseBinder parses "(x : T)" and returns the label and type.
func (p *Parser) parseBinder() (string, ast.Expr, bool) {
	if !p.expectPeek(lexer.LPAREN) {
		return "", nil, false
	}
	if !p.expectPeek(lexer.IDENT) {
		return "", nil, false
	}
	label := p.curToken.Literal
	if !p.expectPeek(lexer.COLON) {
		return "", nil, false
	}
	p.nextToken()
	ty := p.parseExpression(LOWEST)
	if ty == nil || !p.expectPeek(lexer.RPAREN) {
		return "", nil, false
	}
	return label, ty, true
}

func (p *Parser) parseLambda() ast.Expr {
	label, ty, ok := p.parseBinder()
	if !ok || !p.expectPeek(lexer.ARROW) {
		return nil
	}
	p.nextToken()
	body := p.parseExpression(LOWEST)
	if body == nil {
		return nil
	}
	return ast.Lambda{Label: label, Type: ty, Body: body}
}

func (p *Parser) parseForall() ast.Expr {
	label, ty, ok := p.parseBinder()
	if !ok || !p.expectPeek(lexer.ARROW) {
		return nil
	}
	p.nextToken()
	codomain := p.parseExpression(LOWEST)
	if codomain == nil {
		return nil
	}
	return ast.Pi{Label: label, Domain: ty, Codomain: codomain}
}

func (p *Parser) parseLet() ast.Expr {
	if !p.expectPeek(lexer.IDENT) {
		return nil
	}
	label := p.curToken.Literal
	var annot ast.Expr
	if p.peekToken.Type == lexer.COLON {
		p.nextToken()
		p.nextToken()
		annot = p.parseExpression(LOWEST)
		if annot == nil {
			return nil
		}
	}
	if !p.expectPeek(lexer.ASSIGN) {
		return nil
	}
	p.nextToken()
	value := p.parseExpression(LOWEST)
	if value == nil || !p.expectPeek(lexer.IN) {
		return nil
	}
	p.nextToken()
	body := p.parseExpression(LOWEST)
	if body == nil {
		return nil
	}
	return ast.Let{Label: label, Annot: annot, Value: value, Body: body}
}

func (p *Parser) parseGroup() ast.Expr {
	p.nextToken()
	expr := p.parseExpression(LOWEST)
	if expr == nil || !p.expectPeek(lexer.RPAREN) {
		return nil
	}
	return expr
}

func (p *Parser) parseList() ast.Expr {
	var elems []ast.Expr
	if p.peekToken.Type == lexer.RBRACKET {
		p.nextToken()
		return ast.ListLit{}
	}
	for {
		p.nextToken()
		elem := p.parseExpression(LOWEST)
		if elem == nil {
			return nil
		}
		elems = append(elems, elem)
		if p.peekToken.Type != lexer.COMMA {
			break
		}
		p.nextToken()
	}
	if !p.expectPeek(lexer.RBRACKET) {
		return nil
	}
	return ast.ListLit{Elems: elems}
}

func (p *Parser) parseRecord() ast.Expr {
	// {} is the empty record type, {=} the empty record literal.
	if p.peekToken.Type == lexer.RBRACE {
		p.nextToken()
		return ast.RecordType{Fields: map[string]ast.Expr{}}
	}
	if p.peekToken.Type == lexer.ASSIGN {
		p.nextToken()
		if !p.expectPeek(lexer.RBRACE) {
			return nil
		}
		return ast.RecordLit{Fields: map[string]ast.Expr{}}
	}

	if !p.expectPeek(lexer.IDENT) {
		return nil
	}
	first := p.curToken.Literal

	var sep lexer.TokenType
	switch p.peekToken.Type {
	case lexer.COLON, lexer.ASSIGN:
		sep = p.peekToken.Type
		p.nextToken()
	default:
		p.errorf(p.peekToken, "expected : or = in record, found %s", p.peekToken.Type)
		return nil
	}

	fields := map[string]ast.Expr{}
	label := first
	for {
		p.nextToken()
		value := p.parseExpression(LOWEST)
		if value == nil {
			return nil
		}
		if _, dup := fields[label]; dup {
			p.errorf(p.curToken, "duplicate record field %q", label)
			return nil
		}
		fields[label] = value
		if p.peekToken.Type != lexer.COMMA {
			break
		}
		p.nextToken()
		if !p.expectPeek(lexer.IDENT) {
			return nil
		}
		label = p.curToken.Literal
		if !p.expectPeek(sep) {
			return nil
		}
	}
	if !p.expectPeek(lexer.RBRACE) {
		return nil
	}
	if sep == lexer.COLON {
		return ast.RecordType{Fields: fields}
	}
	return ast.RecordLit{Fields: fields}
}

func (p *Parser) parseAnnot(left ast.Expr) ast.Expr {
	p.nextToken()
	ty := p.parseExpression(ANNOT)
	if ty == nil {
		return nil
	}
	// "[] : List T" folds the element type into the empty list literal so
	// that it survives normalization.
	if lst, ok := left.(ast.ListLit); ok && len(lst.Elems) == 0 {
		if app, ok := ty.(ast.App); ok && app.Fn == ast.Expr(ast.List) {
			return ast.ListLit{Type: app.Arg}
		}
	}
	return ast.Annot{Expr: left, Type: ty}
}

func (p *Parser) parseArrow(left ast.Expr) ast.Expr {
	p.nextToken()
	codomain := p.parseExpression(ARROW - 1)
	if codomain == nil {
		return nil
	}
	return ast.Pi{Label: "_", Domain: left, Codomain: codomain}
}

func (p *Parser) parseOp(kind ast.OpKind) infixParseFn {
	return func(left ast.Expr) ast.Expr {
		prec := precedences[p.curToken.Type]
		p.nextToken()
		right := p.parseExpression(prec)
		if right == nil {
			return nil
		}
		return ast.Op{Kind: kind, L: left, R: right}
	}
}

func (p *Parser) parseSelect(left ast.Expr) ast.Expr {
	if !p.expectPeek(lexer.IDENT) {
		return nil
	}
	return ast.Field{Record: left, Label: p.curToken.Literal}
}

func (p *Parser) parseImport() ast.Expr {
	var f ast.Fetchable
	switch p.curToken.Type {
	case lexer.PATH:
		local, err := parseLocal(p.curToken.Literal)
		if err != nil {
			p.errorf(p.curToken, "%v", err)
			return nil
		}
		f = local
	case lexer.URL:
		u, err := url.Parse(p.curToken.Literal)
		if err != nil {
			p.errorf(p.curToken, "invalid URL %q", p.curToken.Literal)
			return nil
		}
		remote, err := ast.MakeRemote(u)
		if err != nil {
			p.errorf(p.curToken, "%v", err)
			return nil
		}
		f = remote
	case lexer.ENV:
		if p.curToken.Literal == "" {
			p.errorf(p.curToken, "env: requires a variable name")
			return nil
		}
		f = ast.EnvVar{Name: p.curToken.Literal}
	case lexer.MISSING:
		f = ast.Missing{}
	}

	imp := ast.Import{Fetchable: f}

	if p.peekToken.Type == lexer.USING {
		remote, ok := f.(ast.RemoteFile)
		if !ok {
			p.errorf(p.peekToken, "only remote imports can carry headers")
			return nil
		}
		p.nextToken()
		p.nextToken()
		grouped := p.curToken.Type == lexer.LPAREN
		headers := p.parseExpression(APPLY)
		headersImport, ok := headers.(ast.Import)
		if !ok {
			p.errorf(p.curToken, "headers clause must be an import")
			return nil
		}
		if !grouped {
			// A bare headers locator takes no suffixes of its own: a
			// trailing hash or "as Text" belongs to the remote import.
			imp.Hash, headersImport.Hash = headersImport.Hash, nil
			imp.Mode, headersImport.Mode = headersImport.Mode, ast.Code
		}
		remote.Headers = &headersImport
		imp.Fetchable = remote
	}

	if p.peekToken.Type == lexer.SHA256 {
		p.nextToken()
		digest, err := hex.DecodeString(strings.ToLower(p.curToken.Literal))
		if err != nil || len(digest) != 32 {
			p.errorf(p.curToken, "sha256 hash must be 64 hex digits")
			return nil
		}
		imp.Hash = digest
	}

	if p.peekToken.Type == lexer.AS {
		p.nextToken()
		if !p.expectPeek(lexer.IDENT) {
			return nil
		}
		if p.curToken.Literal != "Text" {
			p.errorf(p.curToken, "expected Text after as, found %q", p.curToken.Literal)
			return nil
		}
		imp.Mode = ast.RawText
	}

	return imp
}

// parseLocal splits a path literal into its prefix, directory and file.
func parseLocal(path string) (ast.LocalFile, error) {
	var prefix ast.FilePrefix
	var rest string
	switch {
	case strings.HasPrefix(path, "./"):
		prefix, rest = ast.Here, path[2:]
	case strings.HasPrefix(path, "../"):
		prefix, rest = ast.Parent, path[3:]
	case strings.HasPrefix(path, "~/"):
		prefix, rest = ast.Home, path[2:]
	case strings.HasPrefix(path, "/"):
		prefix, rest = ast.Absolute, path[1:]
	default:
		return ast.LocalFile{}, fmt.Errorf("invalid path %q", path)
	}
	if rest == "" || strings.HasSuffix(rest, "/") {
		return ast.LocalFile{}, fmt.Errorf("path %q has no file component", path)
	}
	components := strings.Split(rest, "/")
	return ast.LocalFile{
		Prefix: prefix,
		Dir:    ast.Directory{Components: components[:len(components)-1]},
		File:   components[len(components)-1],
	}, nil
}
