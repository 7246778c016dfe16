package extract

import (
	"fmt"
	"strings"

	"unitmap/internal/unit"
	"unitmap/util"
)

// ScanStats reports best-effort extraction bookkeeping for one scan. The
// extractor is a heuristic, not a grammar-complete parser: candidates that
// fail brace matching or name extraction are skipped and counted here, never
// surfaced as errors.
type ScanStats struct {
	Candidates int
	Extracted  int
	Skipped    int
}

func (s *ScanStats) merge(o ScanStats) {
	s.Candidates += o.Candidates
	s.Extracted += o.Extracted
	s.Skipped += o.Skipped
}

// controlKeywords are identifier-like tokens that may precede '(' without
// marking a call or a definition.
var controlKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "function": true, "typeof": true, "new": true,
	"do": true, "else": true, "try": true, "throw": true, "await": true,
	"in": true, "of": true, "delete": true, "void": true, "yield": true,
}

// Scan extracts units from one contiguous chunk of source text. lineOffset
// is the number of lines preceding the chunk in the full input; source is
// the provenance tag recorded on every extracted unit.
func Scan(text string, lineOffset int, source string) ([]unit.Unit, ScanStats) {
	var units []unit.Unit
	var stats ScanStats
	seen := make(map[string]int)

	t := &tracker{}
	i := 0
	for i < len(text) {
		if !t.inCode() {
			i += t.step(text, i)
			continue
		}

		c := text[i]
		if isIdentStart(c) {
			word, end := readIdent(text, i)
			prev := prevNonSpace(text, i-1)
			if word == "function" && prev != '.' {
				stats.Candidates++
				u, next, ok := scanFunction(text, i, end, lineOffset, source)
				if ok {
					addUnit(&units, seen, u)
					stats.Extracted++
				} else {
					stats.Skipped++
				}
				i = next
				continue
			}
			if !controlKeywords[word] && prev != '.' && end < len(text) && text[end] == '(' {
				u, next, st := scanMethod(text, i, end, word, lineOffset, source)
				switch st {
				case methodMatched:
					stats.Candidates++
					stats.Extracted++
					addUnit(&units, seen, u)
					i = next
					continue
				case methodUnbounded:
					stats.Candidates++
					stats.Skipped++
				}
			}
			i = end
			continue
		}

		if c == '=' && i+1 < len(text) && text[i+1] == '>' {
			stats.Candidates++
			if u, next, ok := scanArrow(text, i, lineOffset, source); ok {
				addUnit(&units, seen, u)
				stats.Extracted++
				i = next
			} else {
				stats.Skipped++
				i += 2
			}
			continue
		}

		i += t.step(text, i)
	}

	return units, stats
}

// addUnit appends u, disambiguating its id on collision within the batch.
func addUnit(units *[]unit.Unit, seen map[string]int, u unit.Unit) {
	seen[u.ID]++
	if n := seen[u.ID]; n > 1 {
		u.ID = fmt.Sprintf("%s-%d", u.ID, n)
	}
	*units = append(*units, u)
}

// scanFunction handles the function-declaration trigger. kwStart/kwEnd
// bracket the keyword itself. On failure the returned position consumes the
// declaration name so the span cannot re-trigger as a method candidate.
func scanFunction(text string, kwStart, kwEnd, lineOffset int, source string) (unit.Unit, int, bool) {
	p := skipSpace(text, kwEnd)
	if p < len(text) && text[p] == '*' { // generator
		p = skipSpace(text, p+1)
	}
	if p >= len(text) || !isIdentStart(text[p]) {
		return unit.Unit{}, p, false // anonymous function expression
	}
	name, nameEnd := readIdent(text, p)
	open := skipSpace(text, nameEnd)
	if open >= len(text) || text[open] != '(' {
		return unit.Unit{}, nameEnd, false
	}
	u, next, ok := finishUnit(text, kwStart, open, name, unit.KindFunction, lineOffset, source)
	if !ok {
		return unit.Unit{}, nameEnd, false
	}
	return u, next, true
}

// scanMethod outcomes. A plain call site shares the trigger shape with a
// method definition and is no candidate at all; a definition-shaped span
// whose delimiters cannot be matched is a candidate the scan had to skip.
const (
	methodNone = iota
	methodMatched
	methodUnbounded
)

// scanMethod handles the method-style trigger: an identifier immediately
// followed by '(' whose parameter list is immediately followed by a body.
func scanMethod(text string, nameStart, nameEnd int, name string, lineOffset int, source string) (unit.Unit, int, int) {
	afterParams := matchDelims(text, nameEnd, '(', ')')
	if afterParams < 0 {
		return unit.Unit{}, 0, methodUnbounded
	}
	open := skipSpace(text, afterParams+1)
	if open >= len(text) || text[open] != '{' {
		return unit.Unit{}, 0, methodNone // call site, not a definition
	}
	closeIdx := matchDelims(text, open, '{', '}')
	if closeIdx < 0 {
		return unit.Unit{}, 0, methodUnbounded
	}
	return buildUnit(text, nameStart, open, closeIdx, name, unit.KindMethod, lineOffset, source), closeIdx + 1, methodMatched
}

// scanArrow handles the arrow-construct trigger, looking backward for the
// assignment target that names the unit.
func scanArrow(text string, arrowIdx, lineOffset int, source string) (unit.Unit, int, bool) {
	spanStart, name, ok := arrowTarget(text, arrowIdx)
	if !ok {
		return unit.Unit{}, 0, false
	}
	open := skipSpace(text, arrowIdx+2)
	if open >= len(text) || text[open] != '{' {
		return unit.Unit{}, 0, false // expression-bodied arrow, no block to bound
	}
	closeIdx := matchDelims(text, open, '{', '}')
	if closeIdx < 0 {
		return unit.Unit{}, 0, false
	}
	return buildUnit(text, spanStart, open, closeIdx, name, unit.KindArrow, lineOffset, source), closeIdx + 1, true
}

// finishUnit matches the signature's parameter list and body starting at the
// opening parenthesis, then assembles the unit.
func finishUnit(text string, spanStart, parenIdx int, name string, kind unit.Kind, lineOffset int, source string) (unit.Unit, int, bool) {
	afterParams := matchDelims(text, parenIdx, '(', ')')
	if afterParams < 0 {
		return unit.Unit{}, 0, false
	}
	open := skipSpace(text, afterParams+1)
	if open >= len(text) || text[open] != '{' {
		return unit.Unit{}, 0, false
	}
	closeIdx := matchDelims(text, open, '{', '}')
	if closeIdx < 0 {
		return unit.Unit{}, 0, false
	}
	return buildUnit(text, spanStart, open, closeIdx, name, kind, lineOffset, source), closeIdx + 1, true
}

func buildUnit(text string, spanStart, bodyOpen, bodyClose int, name string, kind unit.Kind, lineOffset int, source string) unit.Unit {
	startLine := lineOffset + 1 + strings.Count(text[:spanStart], "\n")
	endLine := lineOffset + 1 + strings.Count(text[:bodyClose], "\n")
	return unit.Unit{
		ID:                 util.UnitID(source, name, startLine),
		Name:               name,
		Kind:               kind,
		Code:               text[spanStart : bodyClose+1],
		LineStart:          startLine,
		LineEnd:            endLine,
		StaticDependencies: CallReferences(text[bodyOpen+1 : bodyClose]),
		OriginalSource:     source,
	}
}

// matchDelims finds the closing delimiter structurally matching the opener
// at open. It runs the same lexical tracker as the signature scan so that
// delimiters inside nested strings and comments are never counted. Returns
// -1 when the input ends before the match.
func matchDelims(text string, open int, openCh, closeCh byte) int {
	t := &tracker{}
	depth := 0
	i := open
	for i < len(text) {
		if t.inCode() {
			switch text[i] {
			case openCh:
				depth++
			case closeCh:
				depth--
				if depth == 0 {
					return i
				}
			}
		}
		i += t.step(text, i)
	}
	return -1
}

// CallReferences collects raw call-name references: identifiers immediately
// followed by '(', excluding control keywords, deduplicated in first-seen
// order.
func CallReferences(body string) []string {
	var refs []string
	seen := make(map[string]bool)
	t := &tracker{}
	i := 0
	for i < len(body) {
		if t.inCode() && isIdentStart(body[i]) {
			word, end := readIdent(body, i)
			if end < len(body) && body[end] == '(' && !controlKeywords[word] && !seen[word] {
				seen[word] = true
				refs = append(refs, word)
			}
			i = end
			continue
		}
		i += t.step(body, i)
	}
	return refs
}

// arrowTarget walks backward from "=>" across the parameter list to the
// assignment target. Returns the span start (including a declaration
// keyword if present) and the unqualified name.
func arrowTarget(text string, arrowIdx int) (int, string, bool) {
	j := skipSpaceBack(text, arrowIdx-1)
	if j < 0 {
		return 0, "", false
	}
	switch {
	case text[j] == ')':
		depth := 0
		for j >= 0 {
			switch text[j] {
			case ')':
				depth++
			case '(':
				depth--
			}
			j--
			if depth == 0 {
				break
			}
		}
		if depth != 0 {
			return 0, "", false
		}
	case isIdentChar(text[j]):
		for j >= 0 && isIdentChar(text[j]) {
			j--
		}
	default:
		return 0, "", false
	}

	j = skipSpaceBack(text, j)
	j = skipWordBack(text, j, "async")
	if j < 0 || (text[j] != '=' && text[j] != ':') {
		return 0, "", false
	}
	if text[j] == '=' && j > 0 {
		switch text[j-1] {
		case '=', '!', '<', '>', '+', '-', '*', '/':
			return 0, "", false // comparison or compound assignment
		}
	}
	j = skipSpaceBack(text, j-1)
	if j < 0 || !isIdentChar(text[j]) {
		return 0, "", false
	}
	end := j + 1
	for j >= 0 && (isIdentChar(text[j]) || text[j] == '.') {
		j--
	}
	target := text[j+1 : end]
	spanStart := j + 1
	name := target
	if k := strings.LastIndexByte(target, '.'); k >= 0 {
		name = target[k+1:]
	}
	if name == "" {
		return 0, "", false
	}
	for _, kw := range []string{"const", "let", "var"} {
		k := skipSpaceBack(text, j)
		if k2 := skipWordBack(text, k, kw); k2 != k {
			spanStart = k - len(kw) + 1
			break
		}
	}
	return spanStart, name, true
}

// skipWordBack moves j backward past word if text ends with it at j.
// Returns the new position, or j unchanged when the word is absent.
func skipWordBack(text string, j int, word string) int {
	n := len(word)
	if j+1 < n || text[j+1-n:j+1] != word {
		return j
	}
	if j-n >= 0 && isIdentChar(text[j-n]) {
		return j
	}
	return skipSpaceBack(text, j-n)
}

func readIdent(text string, i int) (string, int) {
	j := i
	for j < len(text) && isIdentChar(text[j]) {
		j++
	}
	return text[i:j], j
}

func skipSpace(text string, i int) int {
	for i < len(text) && isSpace(text[i]) {
		i++
	}
	return i
}

func skipSpaceBack(text string, i int) int {
	for i >= 0 && isSpace(text[i]) {
		i--
	}
	return i
}

func prevNonSpace(text string, i int) byte {
	i = skipSpaceBack(text, i)
	if i < 0 {
		return 0
	}
	return text[i]
}
