package parser

import (
	"strings"

	"github.com/haasonsaas/camel/internal/ir"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokNewline
	tokIndent
	tokDedent
	tokName
	tokKeyword
	tokNumber
	tokString
	tokOp
)

type token struct {
	kind tokKind
	text string
	line int // 1-based
	col  int // 1-based
}

// Keywords the dialect understands. Anything in rejectedKeywords is a
// recognized Python keyword the dialect deliberately refuses.
var dialectKeywords = map[string]bool{
	"if": true, "elif": true, "else": true, "for": true, "in": true,
	"not": true, "and": true, "or": true, "is": true, "raise": true,
	"True": true, "False": true, "None": true, "pass": true,
}

var rejectedKeywords = map[string]bool{
	"def": true, "class": true, "import": true, "from": true, "lambda": true,
	"try": true, "except": true, "finally": true, "while": true,
	"global": true, "nonlocal": true, "with": true, "yield": true,
	"return": true, "async": true, "await": true, "del": true,
	"assert": true, "break": true, "continue": true,
}

// multi-character operators, longest first.
var multiOps = []string{
	"==", "!=", "<=", ">=", "+=", "-=", "*=", "/=", "%=", "//",
}

const singleOps = "=<>+-*/%()[]{},:."

type lexer struct {
	lines   []string
	tokens  []token
	indents []int
	// open bracket stack for implicit line continuation; each entry is
	// the token position of the opening bracket for diagnostics.
	brackets []token
}

// lex tokenizes the source into a flat token stream with synthetic
// NEWLINE / INDENT / DEDENT tokens, Python style.
func lex(src string) ([]token, []string, *Error) {
	lx := &lexer{
		lines:   strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n"),
		indents: []int{0},
	}
	for lineNo := 1; lineNo <= len(lx.lines); lineNo++ {
		if err := lx.lexLine(lineNo); err != nil {
			return nil, lx.lines, err
		}
	}
	if len(lx.brackets) > 0 {
		open := lx.brackets[len(lx.brackets)-1]
		return nil, lx.lines, errAt(lx.loc(open.line, open.col),
			"unexpected end of input: unclosed %q", open.text)
	}
	// Close any open indentation at EOF.
	for len(lx.indents) > 1 {
		lx.indents = lx.indents[:len(lx.indents)-1]
		lx.emit(token{kind: tokDedent, line: len(lx.lines), col: 1})
	}
	lx.emit(token{kind: tokEOF, line: len(lx.lines), col: 1})
	return lx.tokens, lx.lines, nil
}

func (lx *lexer) loc(line, col int) *ir.SourceLoc {
	text := ""
	if line >= 1 && line <= len(lx.lines) {
		text = lx.lines[line-1]
	}
	return &ir.SourceLoc{Line: line, Col: col, Text: text}
}

func (lx *lexer) emit(t token) { lx.tokens = append(lx.tokens, t) }

func (lx *lexer) lexLine(lineNo int) *Error {
	line := lx.lines[lineNo-1]
	pos := 0

	// Indentation handling only applies outside brackets.
	if len(lx.brackets) == 0 {
		indent := 0
		for pos < len(line) {
			switch line[pos] {
			case ' ':
				indent++
			case '\t':
				indent += 8 - indent%8
			default:
				goto indentDone
			}
			pos++
		}
	indentDone:
		rest := strings.TrimSpace(line[pos:])
		if rest == "" || strings.HasPrefix(rest, "#") {
			return nil // blank or comment-only line
		}
		cur := lx.indents[len(lx.indents)-1]
		if indent > cur {
			lx.indents = append(lx.indents, indent)
			lx.emit(token{kind: tokIndent, line: lineNo, col: pos + 1})
		}
		for indent < lx.indents[len(lx.indents)-1] {
			lx.indents = lx.indents[:len(lx.indents)-1]
			lx.emit(token{kind: tokDedent, line: lineNo, col: pos + 1})
		}
		if indent != lx.indents[len(lx.indents)-1] {
			return errAt(lx.loc(lineNo, pos+1), "unindent does not match any outer indentation level")
		}
	}

	emitted := false
	for pos < len(line) {
		c := line[pos]
		switch {
		case c == ' ' || c == '\t':
			pos++
		case c == '#':
			pos = len(line) // comment to end of line
		case c == '\'' || c == '"':
			tok, next, err := lx.lexString(lineNo, line, pos)
			if err != nil {
				return err
			}
			lx.emit(tok)
			emitted = true
			pos = next
		case c >= '0' && c <= '9':
			tok, next := lexNumber(lineNo, line, pos)
			lx.emit(tok)
			emitted = true
			pos = next
		case isNameStart(c):
			start := pos
			for pos < len(line) && isNameChar(line[pos]) {
				pos++
			}
			word := line[start:pos]
			// Reject f-strings and other string prefixes up front.
			if pos < len(line) && (line[pos] == '\'' || line[pos] == '"') &&
				(word == "f" || word == "r" || word == "b" || word == "rb" || word == "fr") {
				return errAt(lx.loc(lineNo, start+1), "string prefixes (f-strings) are not supported; use {{name}} templating")
			}
			kind := tokName
			if rejectedKeywords[word] {
				return errAt(lx.loc(lineNo, start+1), "unsupported keyword %q", word)
			}
			if dialectKeywords[word] {
				kind = tokKeyword
			}
			lx.emit(token{kind: kind, text: word, line: lineNo, col: start + 1})
			emitted = true
		default:
			op, ok := matchOp(line[pos:])
			if !ok {
				return errAt(lx.loc(lineNo, pos+1), "unexpected character %q", string(line[pos]))
			}
			if op == "//" {
				return errAt(lx.loc(lineNo, pos+1), "unsupported operator %q", op)
			}
			t := token{kind: tokOp, text: op, line: lineNo, col: pos + 1}
			switch op {
			case "(", "[", "{":
				lx.brackets = append(lx.brackets, t)
			case ")", "]", "}":
				if len(lx.brackets) == 0 {
					return errAt(lx.loc(lineNo, pos+1), "unmatched %q", op)
				}
				open := lx.brackets[len(lx.brackets)-1]
				if !bracketsPair(open.text, op) {
					return errAt(lx.loc(lineNo, pos+1), "mismatched %q: expected closing for %q", op, open.text)
				}
				lx.brackets = lx.brackets[:len(lx.brackets)-1]
			}
			lx.emit(t)
			emitted = true
			pos += len(op)
		}
	}

	if emitted && len(lx.brackets) == 0 {
		lx.emit(token{kind: tokNewline, line: lineNo, col: len(line) + 1})
	}
	return nil
}

func (lx *lexer) lexString(lineNo int, line string, pos int) (token, int, *Error) {
	quote := line[pos]
	start := pos
	pos++
	var b strings.Builder
	for pos < len(line) {
		c := line[pos]
		if c == '\\' {
			if pos+1 >= len(line) {
				return token{}, 0, errAt(lx.loc(lineNo, pos+1), "incomplete escape sequence")
			}
			switch line[pos+1] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\':
				b.WriteByte('\\')
			case '\'':
				b.WriteByte('\'')
			case '"':
				b.WriteByte('"')
			default:
				b.WriteByte('\\')
				b.WriteByte(line[pos+1])
			}
			pos += 2
			continue
		}
		if c == quote {
			return token{kind: tokString, text: b.String(), line: lineNo, col: start + 1}, pos + 1, nil
		}
		b.WriteByte(c)
		pos++
	}
	return token{}, 0, errAt(lx.loc(lineNo, start+1), "unterminated string literal")
}

func lexNumber(lineNo int, line string, pos int) (token, int) {
	start := pos
	for pos < len(line) && line[pos] >= '0' && line[pos] <= '9' {
		pos++
	}
	if pos < len(line) && line[pos] == '.' && pos+1 < len(line) && line[pos+1] >= '0' && line[pos+1] <= '9' {
		pos++
		for pos < len(line) && line[pos] >= '0' && line[pos] <= '9' {
			pos++
		}
	}
	if pos < len(line) && (line[pos] == 'e' || line[pos] == 'E') {
		peek := pos + 1
		if peek < len(line) && (line[peek] == '+' || line[peek] == '-') {
			peek++
		}
		if peek < len(line) && line[peek] >= '0' && line[peek] <= '9' {
			pos = peek
			for pos < len(line) && line[pos] >= '0' && line[pos] <= '9' {
				pos++
			}
		}
	}
	return token{kind: tokNumber, text: line[start:pos], line: lineNo, col: start + 1}, pos
}

func matchOp(s string) (string, bool) {
	for _, op := range multiOps {
		if strings.HasPrefix(s, op) {
			return op, true
		}
	}
	if len(s) > 0 && strings.IndexByte(singleOps, s[0]) >= 0 {
		return s[:1], true
	}
	return "", false
}

func bracketsPair(open, close string) bool {
	switch open {
	case "(":
		return close == ")"
	case "[":
		return close == "]"
	case "{":
		return close == "}"
	}
	return false
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
