// Package xliff reads memoQ XLIFF documents and extracts the manually
// confirmed translation units that carry a machine-translation origin.
package xliff

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// MemoQNamespace is the namespace URI memoQ binds to the "mq" prefix.
const MemoQNamespace = "MQXliff"

// ParseError reports that the input is not well-formed markup. No records
// are ever returned together with a ParseError.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("xliff: parse error at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("xliff: parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Document is a parsed XML tree. It is never mutated after Parse returns.
type Document struct {
	Root *Node
}

// Node is a single element. Character data and child elements are kept in
// document order so Text can reproduce mixed content.
type Node struct {
	Name     xml.Name
	Attr     []xml.Attr
	Children []*Node

	parts []part
}

type part struct {
	text  string
	child *Node
}

// Parse reads a whole document into memory.
func Parse(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(skipBOM(r))
	dec.Strict = true
	dec.CharsetReader = charsetReader

	var root *Node
	var stack []*Node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newParseError(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name, Attr: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) == 0 {
				if root != nil {
					return nil, &ParseError{Line: lineOf(dec), Err: errors.New("multiple root elements")}
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
				parent.parts = append(parent.parts, part{child: n})
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, &ParseError{Line: lineOf(dec), Err: errors.New("text outside the root element")}
				}
				continue
			}
			top := stack[len(stack)-1]
			top.parts = append(top.parts, part{text: string(t)})
		}
	}

	if len(stack) > 0 {
		return nil, &ParseError{Line: lineOf(dec), Err: io.ErrUnexpectedEOF}
	}
	if root == nil {
		return nil, &ParseError{Err: errors.New("no root element")}
	}
	return &Document{Root: root}, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// charsetReader handles exports declared as UTF-16 or a legacy code page.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

func newParseError(err error) *ParseError {
	pe := &ParseError{Err: err}
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		pe.Line = se.Line
	}
	return pe
}

func lineOf(dec *xml.Decoder) int {
	line, _ := dec.InputPos()
	return line
}

// Text returns all character data inside n, including that of nested
// inline elements, in document order. It does not trim.
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	n.writeText(&sb)
	return sb.String()
}

func (n *Node) writeText(sb *strings.Builder) {
	for _, p := range n.parts {
		if p.child != nil {
			p.child.writeText(sb)
		} else {
			sb.WriteString(p.text)
		}
	}
}

// AttrValue returns the value of the attribute with the given namespace URI and
// local name. An empty space matches only unqualified attributes.
func (n *Node) AttrValue(space, local string) (string, bool) {
	for _, a := range n.Attr {
		if a.Name.Local == local && a.Name.Space == space {
			return a.Value, true
		}
	}
	return "", false
}

// MemoQAttr looks up an attribute in the memoQ namespace. Documents that use
// the mq prefix without declaring it are accepted as well.
func (n *Node) MemoQAttr(local string) string {
	if v, ok := n.AttrValue(MemoQNamespace, local); ok {
		return v
	}
	v, _ := n.AttrValue("mq", local)
	return v
}

// IsMemoQ reports whether the element lives in the memoQ namespace.
func (n *Node) IsMemoQ() bool {
	return n.Name.Space == MemoQNamespace || n.Name.Space == "mq"
}

// Child returns the first direct child with the given local name that is
// not a memoQ extension element.
func (n *Node) Child(local string) *Node {
	for _, c := range n.Children {
		if c.Name.Local == local && !c.IsMemoQ() {
			return c
		}
	}
	return nil
}

// MemoQChildren returns the direct memoQ extension children with the given
// local name.
func (n *Node) MemoQChildren(local string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name.Local == local && c.IsMemoQ() {
			out = append(out, c)
		}
	}
	return out
}
