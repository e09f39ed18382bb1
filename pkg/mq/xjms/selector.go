package xjms

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Selector 基于消息 properties 的 SQL92 子集过滤条件。
//
// 支持 = <> < <= > >=、+ - * /、AND OR NOT、括号、数字与单引号字符串字面量、
// TRUE/FALSE、IS [NOT] NULL、[NOT] BETWEEN、[NOT] IN (...)、
// [NOT] LIKE（% 与 _，可选 ESCAPE）。
//
// 求值使用三值逻辑：缺失的属性为 NULL，涉及 NULL 的比较结果为 UNKNOWN，
// 只有结果为 TRUE 时才匹配。properties 的值都是字符串，与数字比较时按数字解析，
// 解析失败视为 UNKNOWN。
type Selector struct {
	src  string
	root node
}

// ParseSelector 解析选择器，空串返回 nil，nil 选择器匹配所有消息。
func ParseSelector(src string) (*Selector, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
	return &Selector{src: src, root: root}, nil
}

// MustParseSelector 解析失败时 panic。
func MustParseSelector(src string) *Selector {
	s, err := ParseSelector(src)
	if err != nil {
		panic(err)
	}
	return s
}

// Matches 判断 props 是否满足条件。
func (s *Selector) Matches(props map[string]string) bool {
	if s == nil {
		return true
	}
	return s.root.eval(props).truth() == triTrue
}

func (s *Selector) String() string {
	if s == nil {
		return ""
	}
	return s.src
}

// ---------------------------------------------------------------------------
// 词法

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func lex(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case r == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case r == '\'':
			start := i
			var sb strings.Builder
			i++
			for {
				if i >= len(rs) {
					return nil, &SelectorError{Selector: src, Pos: start, Msg: "unterminated string literal"}
				}
				if rs[i] == '\'' {
					if i+1 < len(rs) && rs[i+1] == '\'' {
						sb.WriteRune('\'')
						i += 2
						continue
					}
					i++
					break
				}
				sb.WriteRune(rs[i])
				i++
			}
			toks = append(toks, token{tokString, sb.String(), start})
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.') {
				i++
			}
			if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
				j := i + 1
				if j < len(rs) && (rs[j] == '+' || rs[j] == '-') {
					j++
				}
				if j < len(rs) && unicode.IsDigit(rs[j]) {
					i = j
					for i < len(rs) && unicode.IsDigit(rs[i]) {
						i++
					}
				}
			}
			// Java 风格的 long/float 后缀
			if i < len(rs) && strings.ContainsRune("lLfFdD", rs[i]) {
				i++
			}
			toks = append(toks, token{tokNumber, string(rs[start:i]), start})
		case isIdentStart(r):
			start := i
			for i < len(rs) && isIdentPart(rs[i]) {
				i++
			}
			toks = append(toks, token{tokIdent, string(rs[start:i]), start})
		case strings.ContainsRune("=+-*/", r):
			toks = append(toks, token{tokOp, string(r), i})
			i++
		case r == '<' || r == '>':
			start := i
			op := string(r)
			if i+1 < len(rs) && (rs[i+1] == '=' || (r == '<' && rs[i+1] == '>')) {
				op += string(rs[i+1])
				i++
			}
			i++
			toks = append(toks, token{tokOp, op, start})
		default:
			return nil, &SelectorError{Selector: src, Pos: i, Msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	return append(toks, token{tokEOF, "", len(rs)}), nil
}

func isIdentStart(r rune) bool { return unicode.IsLetter(r) || r == '_' || r == '$' }

func isIdentPart(r rune) bool { return isIdentStart(r) || unicode.IsDigit(r) }

// ---------------------------------------------------------------------------
// 语法

type parser struct {
	src  string
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SelectorError{Selector: p.src, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

// keyword 当前 token 是给定关键字时消费它。
func (p *parser) keyword(kw string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, kw) {
		p.i++
		return true
	}
	return false
}

// keywordAt 不消费，检查偏移 off 处是否为关键字。
func (p *parser) keywordAt(off int, kw string) bool {
	if p.i+off >= len(p.toks) {
		return false
	}
	t := p.toks[p.i+off]
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

var reserved = map[string]bool{
	"AND": true, "OR": true, "NOT": true, "IS": true, "NULL": true, "BETWEEN": true,
	"IN": true, "LIKE": true, "ESCAPE": true, "TRUE": true, "FALSE": true,
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.keyword("NOT") {
		n, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notNode{n}, nil
	}
	return p.parsePredicate()
}

func (p *parser) parsePredicate() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	if t.kind == tokOp {
		switch t.text {
		case "=", "<>", "<", "<=", ">", ">=":
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return cmpNode{op: t.text, l: left, r: right}, nil
		}
	}

	if p.keyword("IS") {
		negate := p.keyword("NOT")
		if !p.keyword("NULL") {
			return nil, p.errorf(p.peek(), "expected NULL")
		}
		return isNullNode{v: left, negate: negate}, nil
	}

	negate := false
	if p.keywordAt(0, "NOT") && (p.keywordAt(1, "BETWEEN") || p.keywordAt(1, "IN") || p.keywordAt(1, "LIKE")) {
		p.next()
		negate = true
	}

	var n node
	switch {
	case p.keyword("BETWEEN"):
		lo, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if !p.keyword("AND") {
			return nil, p.errorf(p.peek(), "expected AND in BETWEEN")
		}
		hi, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		n = andNode{cmpNode{op: ">=", l: left, r: lo}, cmpNode{op: "<=", l: left, r: hi}}
	case p.keyword("IN"):
		list, err := p.parseInList()
		if err != nil {
			return nil, err
		}
		n = inNode{v: left, list: list}
	case p.keyword("LIKE"):
		re, err := p.parseLike()
		if err != nil {
			return nil, err
		}
		n = likeNode{v: left, re: re}
	default:
		if negate {
			return nil, p.errorf(p.peek(), "unexpected NOT")
		}
		return left, nil
	}
	if negate {
		n = notNode{n}
	}
	return n, nil
}

func (p *parser) parseInList() ([]value, error) {
	if t := p.next(); t.kind != tokLParen {
		return nil, p.errorf(t, "expected ( after IN")
	}
	var list []value
	for {
		t := p.next()
		switch t.kind {
		case tokString:
			list = append(list, strValue(t.text))
		case tokNumber:
			v, err := parseNumber(t.text)
			if err != nil {
				return nil, p.errorf(t, "invalid number %q", t.text)
			}
			list = append(list, v)
		default:
			return nil, p.errorf(t, "expected literal in IN list")
		}
		t = p.next()
		if t.kind == tokRParen {
			return list, nil
		}
		if t.kind != tokComma {
			return nil, p.errorf(t, "expected , or ) in IN list")
		}
	}
}

func (p *parser) parseLike() (*regexp.Regexp, error) {
	t := p.next()
	if t.kind != tokString {
		return nil, p.errorf(t, "expected string pattern after LIKE")
	}
	pattern := []rune(t.text)
	var escape rune
	if p.keyword("ESCAPE") {
		e := p.next()
		if e.kind != tokString || len([]rune(e.text)) != 1 {
			return nil, p.errorf(e, "ESCAPE must be a single character string")
		}
		escape = []rune(e.text)[0]
	}

	var sb strings.Builder
	sb.WriteString("(?s)^")
	for i := 0; i < len(pattern); i++ {
		r := pattern[i]
		switch {
		case escape != 0 && r == escape:
			if i+1 >= len(pattern) {
				return nil, p.errorf(t, "dangling escape character in LIKE pattern")
			}
			i++
			sb.WriteString(regexp.QuoteMeta(string(pattern[i])))
		case r == '%':
			sb.WriteString(".*")
		case r == '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = arithNode{op: t.text, l: left, r: right}
	}
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = arithNode{op: t.text, l: left, r: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	t := p.peek()
	if t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.next()
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if t.text == "-" {
			return arithNode{op: "-", l: literal{numValue(0)}, r: n}, nil
		}
		return n, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := parseNumber(t.text)
		if err != nil {
			return nil, p.errorf(t, "invalid number %q", t.text)
		}
		return literal{v}, nil
	case tokString:
		return literal{strValue(t.text)}, nil
	case tokLParen:
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if r := p.next(); r.kind != tokRParen {
			return nil, p.errorf(r, "expected )")
		}
		return n, nil
	case tokIdent:
		upper := strings.ToUpper(t.text)
		switch upper {
		case "TRUE":
			return literal{boolValue(true)}, nil
		case "FALSE":
			return literal{boolValue(false)}, nil
		}
		if reserved[upper] {
			return nil, p.errorf(t, "unexpected keyword %s", upper)
		}
		return property(t.text), nil
	case tokEOF:
		return nil, p.errorf(t, "unexpected end of selector")
	}
	return nil, p.errorf(t, "unexpected %q", t.text)
}

func parseNumber(s string) (value, error) {
	s = strings.TrimRight(s, "lLfFdD")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return value{}, err
	}
	return numValue(f), nil
}

// ---------------------------------------------------------------------------
// 求值

type tri int8

const (
	triUnknown tri = iota
	triFalse
	triTrue
)

func (t tri) not() tri {
	switch t {
	case triTrue:
		return triFalse
	case triFalse:
		return triTrue
	}
	return triUnknown
}

type valueKind int8

const (
	kindNull valueKind = iota
	kindNum
	kindStr
	kindBool
)

type value struct {
	kind valueKind
	num  float64
	str  string
	b    bool
}

var nullValue = value{}

func numValue(f float64) value { return value{kind: kindNum, num: f} }
func strValue(s string) value  { return value{kind: kindStr, str: s} }
func boolValue(b bool) value   { return value{kind: kindBool, b: b} }
func triValue(t tri) value {
	switch t {
	case triTrue:
		return boolValue(true)
	case triFalse:
		return boolValue(false)
	}
	return nullValue
}

func (v value) truth() tri {
	switch v.kind {
	case kindBool:
		if v.b {
			return triTrue
		}
		return triFalse
	case kindStr:
		switch {
		case strings.EqualFold(v.str, "true"):
			return triTrue
		case strings.EqualFold(v.str, "false"):
			return triFalse
		}
	}
	return triUnknown
}

func (v value) asNum() (float64, bool) {
	switch v.kind {
	case kindNum:
		return v.num, true
	case kindStr:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		return f, err == nil
	}
	return 0, false
}

type node interface {
	eval(props map[string]string) value
}

type literal struct{ v value }

func (n literal) eval(map[string]string) value { return n.v }

type property string

func (n property) eval(props map[string]string) value {
	if v, ok := props[string(n)]; ok {
		return strValue(v)
	}
	return nullValue
}

type andNode struct{ l, r node }

func (n andNode) eval(props map[string]string) value {
	l := n.l.eval(props).truth()
	if l == triFalse {
		return boolValue(false)
	}
	r := n.r.eval(props).truth()
	switch {
	case r == triFalse:
		return boolValue(false)
	case l == triTrue && r == triTrue:
		return boolValue(true)
	}
	return nullValue
}

type orNode struct{ l, r node }

func (n orNode) eval(props map[string]string) value {
	l := n.l.eval(props).truth()
	if l == triTrue {
		return boolValue(true)
	}
	r := n.r.eval(props).truth()
	switch {
	case r == triTrue:
		return boolValue(true)
	case l == triFalse && r == triFalse:
		return boolValue(false)
	}
	return nullValue
}

type notNode struct{ n node }

func (n notNode) eval(props map[string]string) value {
	return triValue(n.n.eval(props).truth().not())
}

type cmpNode struct {
	op   string
	l, r node
}

func (n cmpNode) eval(props map[string]string) value {
	return triValue(compare(n.op, n.l.eval(props), n.r.eval(props)))
}

func compare(op string, l, r value) tri {
	if l.kind == kindNull || r.kind == kindNull {
		return triUnknown
	}
	if l.kind == kindNum || r.kind == kindNum {
		a, ok1 := l.asNum()
		b, ok2 := r.asNum()
		if !ok1 || !ok2 {
			return triUnknown
		}
		return orderResult(op, cmpFloat(a, b))
	}
	if l.kind == kindBool || r.kind == kindBool {
		a, b := l.truth(), r.truth()
		if a == triUnknown || b == triUnknown {
			return triUnknown
		}
		return equalityResult(op, a == b)
	}
	return equalityResult(op, l.str == r.str)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func orderResult(op string, c int) tri {
	var ok bool
	switch op {
	case "=":
		ok = c == 0
	case "<>":
		ok = c != 0
	case "<":
		ok = c < 0
	case "<=":
		ok = c <= 0
	case ">":
		ok = c > 0
	case ">=":
		ok = c >= 0
	}
	if ok {
		return triTrue
	}
	return triFalse
}

// equalityResult 字符串与布尔值只支持 = 和 <>。
func equalityResult(op string, equal bool) tri {
	switch op {
	case "=":
		if equal {
			return triTrue
		}
		return triFalse
	case "<>":
		if equal {
			return triFalse
		}
		return triTrue
	}
	return triUnknown
}

type arithNode struct {
	op   string
	l, r node
}

func (n arithNode) eval(props map[string]string) value {
	a, ok1 := n.l.eval(props).asNum()
	b, ok2 := n.r.eval(props).asNum()
	if !ok1 || !ok2 {
		return nullValue
	}
	var f float64
	switch n.op {
	case "+":
		f = a + b
	case "-":
		f = a - b
	case "*":
		f = a * b
	case "/":
		if b == 0 {
			return nullValue
		}
		f = a / b
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nullValue
	}
	return numValue(f)
}

type isNullNode struct {
	v      node
	negate bool
}

func (n isNullNode) eval(props map[string]string) value {
	isNull := n.v.eval(props).kind == kindNull
	return boolValue(isNull != n.negate)
}

type inNode struct {
	v    node
	list []value
}

func (n inNode) eval(props map[string]string) value {
	v := n.v.eval(props)
	if v.kind == kindNull {
		return nullValue
	}
	result := triFalse
	for _, item := range n.list {
		switch compare("=", v, item) {
		case triTrue:
			return boolValue(true)
		case triUnknown:
			result = triUnknown
		}
	}
	return triValue(result)
}

type likeNode struct {
	v  node
	re *regexp.Regexp
}

func (n likeNode) eval(props map[string]string) value {
	v := n.v.eval(props)
	if v.kind != kindStr {
		return nullValue
	}
	return boolValue(n.re.MatchString(v.str))
}
