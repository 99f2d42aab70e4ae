package services

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

// ErrUnsupportedPayload is returned for mapping types this engine cannot decode.
var ErrUnsupportedPayload = errors.New("mapping type is not processable")

// messageKey holds the raw text of FLAT_FILE and HEX payloads.
const messageKey = "message"

// DecodePayload turns a raw broker payload into the JSON value model according
// to the mapping type.
func DecodePayload(m *mapping.Mapping, raw []byte) (*jsonval.Value, error) {
	switch m.MappingType {
	case mapping.TypeJSON, mapping.TypeCodeBased, "":
		v, err := jsonval.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", m.MappingType, err)
		}
		return v, nil
	case mapping.TypeFlatFile:
		return jsonval.Object(jsonval.Field{Key: messageKey, Value: jsonval.String(string(raw))}), nil
	case mapping.TypeHex:
		return jsonval.Object(jsonval.Field{Key: messageKey, Value: jsonval.String("0x" + hex.EncodeToString(raw))}), nil
	case mapping.TypeXML:
		doc, err := parseXML(raw)
		if err != nil {
			return nil, err
		}
		return xmlValue(doc), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPayload, m.MappingType)
	}
}

// IsXPathFilter reports whether an XML mapping filters with XPath instead of
// the expression language.
func IsXPathFilter(m *mapping.Mapping) bool {
	return m.MappingType == mapping.TypeXML && strings.HasPrefix(strings.TrimSpace(m.FilterMapping), "/")
}

// ValidateXPath checks that an XPath filter compiles.
func ValidateXPath(m *mapping.Mapping) error {
	if !IsXPathFilter(m) {
		return nil
	}
	if _, err := xpath.Compile(strings.TrimSpace(m.FilterMapping)); err != nil {
		return fmt.Errorf("filterMapping: invalid xpath %q: %w", m.FilterMapping, err)
	}
	return nil
}

// FilterXML evaluates the XPath filter of an XML mapping against raw. A node
// set passes when it is not empty; numbers pass when non-zero.
func FilterXML(m *mapping.Mapping, raw []byte) (bool, error) {
	expr, err := xpath.Compile(strings.TrimSpace(m.FilterMapping))
	if err != nil {
		return false, fmt.Errorf("filterMapping: invalid xpath %q: %w", m.FilterMapping, err)
	}
	doc, err := parseXML(raw)
	if err != nil {
		return false, err
	}

	switch res := expr.Evaluate(xmlquery.CreateXPathNavigator(doc)).(type) {
	case bool:
		return res, nil
	case float64:
		return res != 0 && !math.IsNaN(res), nil
	case string:
		return res != "", nil
	case *xpath.NodeIterator:
		return res.MoveNext(), nil
	default:
		return false, fmt.Errorf("filterMapping: unexpected xpath result %T", res)
	}
}

func parseXML(raw []byte) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode XML payload: %w", err)
	}
	return doc, nil
}

// xmlValue converts a document into an object keyed by element name.
// Attributes become "@name" members, repeated elements become arrays and text
// next to child elements is kept under "#text". Leaf elements become strings.
func xmlValue(n *xmlquery.Node) *jsonval.Value {
	obj := jsonval.Object()
	for _, a := range n.Attr {
		obj.Put("@"+qualified(a.Name.Space, a.Name.Local), jsonval.String(a.Value))
	}

	var (
		text     strings.Builder
		order    []string
		children = make(map[string][]*jsonval.Value)
	)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.ElementNode:
			name := qualified(c.Prefix, c.Data)
			if _, seen := children[name]; !seen {
				order = append(order, name)
			}
			children[name] = append(children[name], xmlValue(c))
		case xmlquery.TextNode, xmlquery.CharDataNode:
			text.WriteString(c.Data)
		}
	}

	content := strings.TrimSpace(text.String())
	if n.Type == xmlquery.ElementNode && len(n.Attr) == 0 && len(order) == 0 {
		return jsonval.String(content)
	}
	for _, name := range order {
		items := children[name]
		if len(items) == 1 {
			obj.Put(name, items[0])
		} else {
			obj.Put(name, jsonval.Array(items...))
		}
	}
	if content != "" && n.Type == xmlquery.ElementNode {
		obj.Put("#text", jsonval.String(content))
	}
	return obj
}

func qualified(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}
