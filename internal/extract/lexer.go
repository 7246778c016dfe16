package extract

// lexState is the scanner's lexical mode. The extractor and the brace
// matcher share one tracker so that braces inside strings and comments are
// never miscounted; keeping both on the same state machine is a correctness
// requirement, not a convenience.
type lexState int

const (
	stateCode lexState = iota
	stateLineComment
	stateBlockComment
	stateString
)

// tracker walks source text byte-by-byte maintaining lexical state.
type tracker struct {
	state   lexState
	delim   byte // active string delimiter when state == stateString
	escaped bool
}

// inCode reports whether the next byte is interpreted as code.
func (t *tracker) inCode() bool {
	return t.state == stateCode
}

// step consumes src[i] and returns the number of bytes consumed (1, or 2
// when a two-byte token such as a comment opener is swallowed whole).
func (t *tracker) step(src string, i int) int {
	c := src[i]
	switch t.state {
	case stateCode:
		switch {
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			t.state = stateLineComment
			return 2
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			t.state = stateBlockComment
			return 2
		case c == '"' || c == '\'' || c == '`':
			t.state = stateString
			t.delim = c
		}
	case stateLineComment:
		if c == '\n' {
			t.state = stateCode
		}
	case stateBlockComment:
		if c == '*' && i+1 < len(src) && src[i+1] == '/' {
			t.state = stateCode
			return 2
		}
	case stateString:
		switch {
		case t.escaped:
			t.escaped = false
		case c == '\\':
			t.escaped = true
		case c == t.delim:
			t.state = stateCode
		}
	}
	return 1
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
