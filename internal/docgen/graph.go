// Package docgen turns the documentation graph emitted for a provider module
// (mod.json) into the provider and resource items shown on documentation
// pages.
//
// The graph is a flat list of declaration nodes. Only three shapes matter
// here and they are decoded into a closed set of variants: ClassNode,
// InterfaceNode and OtherNode. Fields the synthesizer does not read are
// preserved verbatim inside TsType so renderers still see the full type.
package docgen

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Node kinds present in the documentation graph.
const (
	KindClass     = "class"
	KindInterface = "interface"
)

// Node is one declaration in the documentation graph.
type Node interface {
	NodeKind() string
	NodeName() string
}

// JsDoc is a parsed doc comment.
type JsDoc struct {
	Doc  string     `json:"doc,omitempty"`
	Tags []JsDocTag `json:"tags,omitempty"`
}

// JsDocTag is a single @tag. Only the kind and its text are retained.
type JsDocTag struct {
	Kind string `json:"kind"`
	Name string `json:"name,omitempty"`
	Doc  string `json:"doc,omitempty"`
}

// TsType is a type expression. Repr, Kind and Union are decoded for
// inspection; the original JSON object is kept and re-emitted as-is.
type TsType struct {
	Repr  string
	Kind  string
	Union []TsType

	raw json.RawMessage
}

type tsTypeFields struct {
	Repr  string   `json:"repr"`
	Kind  string   `json:"kind"`
	Union []TsType `json:"union"`
}

// UnmarshalJSON decodes the inspected fields and keeps the raw object.
func (t *TsType) UnmarshalJSON(data []byte) error {
	var f tsTypeFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	t.Repr, t.Kind, t.Union = f.Repr, f.Kind, f.Union
	t.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the original object when one was decoded.
func (t TsType) MarshalJSON() ([]byte, error) {
	if len(t.raw) > 0 {
		return t.raw, nil
	}
	return json.Marshal(tsTypeFields{Repr: t.Repr, Kind: t.Kind, Union: t.Union})
}

// Param is a constructor parameter.
type Param struct {
	Name   string  `json:"name"`
	TsType *TsType `json:"tsType"`
}

// Constructor is a class constructor signature.
type Constructor struct {
	Params []Param `json:"params"`
}

// ClassDef is the class-specific part of a class node.
type ClassDef struct {
	Extends         string        `json:"extends"`
	Constructors    []Constructor `json:"constructors"`
	SuperTypeParams []TsType      `json:"superTypeParams"`
}

// ClassNode is a class declaration.
type ClassNode struct {
	Name     string   `json:"name"`
	JsDoc    *JsDoc   `json:"jsDoc"`
	ClassDef ClassDef `json:"classDef"`
}

func (n *ClassNode) NodeKind() string { return KindClass }
func (n *ClassNode) NodeName() string { return n.Name }

// Property is an interface property.
type Property struct {
	Name   string  `json:"name"`
	JsDoc  *JsDoc  `json:"jsDoc"`
	TsType *TsType `json:"tsType"`
}

// InterfaceDef is the interface-specific part of an interface node.
type InterfaceDef struct {
	Properties []Property `json:"properties"`
}

// InterfaceNode is an interface declaration.
type InterfaceNode struct {
	Name         string       `json:"name"`
	JsDoc        *JsDoc       `json:"jsDoc"`
	InterfaceDef InterfaceDef `json:"interfaceDef"`
}

func (n *InterfaceNode) NodeKind() string { return KindInterface }
func (n *InterfaceNode) NodeName() string { return n.Name }

// OtherNode is any declaration the synthesizer ignores (functions, type
// aliases, imports, namespaces and so on).
type OtherNode struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

func (n *OtherNode) NodeKind() string { return n.Kind }
func (n *OtherNode) NodeName() string { return n.Name }

// ParseGraph decodes a documentation graph. Both the bare node array and the
// versioned {"version": n, "nodes": [...]} envelope are accepted.
func ParseGraph(data []byte) ([]Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty documentation graph")
	}

	var raws []json.RawMessage
	if data[0] == '{' {
		var envelope struct {
			Nodes []json.RawMessage `json:"nodes"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("failed to decode documentation graph: %w", err)
		}
		raws = envelope.Nodes
	} else if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode documentation graph: %w", err)
	}

	nodes := make([]Node, 0, len(raws))
	for i, raw := range raws {
		n, err := decodeNode(raw)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func decodeNode(raw json.RawMessage) (Node, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	var n Node
	switch head.Kind {
	case KindClass:
		n = &ClassNode{}
	case KindInterface:
		n = &InterfaceNode{}
	default:
		n = &OtherNode{}
	}
	if err := json.Unmarshal(raw, n); err != nil {
		return nil, fmt.Errorf("%s node: %w", head.Kind, err)
	}
	return n, nil
}
