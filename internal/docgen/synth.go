package docgen

import (
	"fmt"
	"strings"
)

// Base classes recognised in the documentation graph.
const (
	ProviderBase = "MashinProvider"
	ResourceBase = "MashinResource"
)

// Item kinds.
const (
	ItemProvider = "provider"
	ItemResource = "resource"
)

// Item is one entry of a version's documentation list.
type Item interface {
	ItemKind() string
}

// ParamDoc describes one configuration property.
type ParamDoc struct {
	Name     string  `json:"name"`
	JsDoc    *JsDoc  `json:"js_doc"`
	TsType   *TsType `json:"ts_type"`
	Optional bool    `json:"optional"`
}

// OutputDoc describes one output property. Outputs carry no optional flag.
type OutputDoc struct {
	Name   string  `json:"name"`
	JsDoc  *JsDoc  `json:"js_doc"`
	TsType *TsType `json:"ts_type"`
}

// ProviderItem documents the provider entry class.
type ProviderItem struct {
	Kind    string     `json:"kind"`
	JsDoc   *JsDoc     `json:"js_doc"`
	Params  []ParamDoc `json:"params"`
	Example *string    `json:"example"`
}

func (ProviderItem) ItemKind() string { return ItemProvider }

// ResourceItem documents one resource class.
type ResourceItem struct {
	Kind    string      `json:"kind"`
	Name    string      `json:"name"`
	Anchor  string      `json:"anchor"`
	JsDoc   *JsDoc      `json:"js_doc"`
	Example *string     `json:"example"`
	Params  []ParamDoc  `json:"params"`
	Output  []OutputDoc `json:"output"`
}

func (ResourceItem) ItemKind() string { return ItemResource }

// Example is an example source file taken from the release archive, labelled
// with the resource it illustrates.
type Example struct {
	Resource string
	Content  []byte
}

// Synthesize builds the documentation list for a provider module. The result
// is the provider item followed by one item per resource in graph order. A
// graph without a provider class, or without any resource class, yields an
// empty list.
//
// Interface lookups take the first node with a matching name.
func Synthesize(moduleName string, nodes []Node, examples []Example) []Item {
	provider, resources := partition(nodes)
	if provider == nil || len(resources) == 0 {
		return []Item{}
	}

	items := make([]Item, 0, len(resources)+1)
	items = append(items, buildProvider(moduleName, provider, nodes))
	for _, r := range resources {
		items = append(items, buildResource(moduleName, r, nodes, examples))
	}
	return items
}

func partition(nodes []Node) (*ClassNode, []*ClassNode) {
	var provider *ClassNode
	var resources []*ClassNode
	for _, n := range nodes {
		c, ok := n.(*ClassNode)
		if !ok {
			continue
		}
		switch c.ClassDef.Extends {
		case ProviderBase:
			if provider == nil {
				provider = c
			}
		case ResourceBase:
			resources = append(resources, c)
		}
	}
	return provider, resources
}

func buildProvider(moduleName string, c *ClassNode, nodes []Node) ProviderItem {
	params := paramDocs(findInterface(nodes, configTypeName(c)))

	var example *string
	if body := tagExamples(params, 2); body != "" {
		s := fmt.Sprintf("new %s.Provider(%q, {\n%s\n});", moduleName, SnakeCase(moduleName)+"_name", body)
		example = &s
	}

	return ProviderItem{
		Kind:    ItemProvider,
		JsDoc:   c.JsDoc,
		Params:  params,
		Example: example,
	}
}

func buildResource(moduleName string, c *ClassNode, nodes []Node, examples []Example) ResourceItem {
	anchor := SnakeCase(c.Name)
	params := paramDocs(findInterface(nodes, configTypeName(c)))
	output := outputDocs(findInterface(nodes, outputTypeName(c)))

	example := matchExample(anchor, examples)
	if example == nil {
		if body := tagExamples(params, 4); body != "" {
			s := fmt.Sprintf("new %s.%s(\n  %q,\n  {\n%s\n  },\n  { provider }\n);",
				moduleName, c.Name, anchor+"_name", body)
			example = &s
		}
	}

	return ResourceItem{
		Kind:    ItemResource,
		Name:    c.Name,
		Anchor:  anchor,
		JsDoc:   c.JsDoc,
		Example: example,
		Params:  params,
		Output:  output,
	}
}

// configTypeName is the type name of the second constructor parameter of the
// first constructor: (name, config).
func configTypeName(c *ClassNode) string {
	if len(c.ClassDef.Constructors) == 0 {
		return ""
	}
	params := c.ClassDef.Constructors[0].Params
	if len(params) < 2 || params[1].TsType == nil {
		return ""
	}
	return params[1].TsType.Repr
}

// outputTypeName is the first generic argument of the superclass.
func outputTypeName(c *ClassNode) string {
	if len(c.ClassDef.SuperTypeParams) == 0 {
		return ""
	}
	return c.ClassDef.SuperTypeParams[0].Repr
}

func findInterface(nodes []Node, name string) *InterfaceNode {
	if name == "" {
		return nil
	}
	for _, n := range nodes {
		if i, ok := n.(*InterfaceNode); ok && i.Name == name {
			return i
		}
	}
	return nil
}

func paramDocs(iface *InterfaceNode) []ParamDoc {
	if iface == nil {
		return []ParamDoc{}
	}
	out := make([]ParamDoc, 0, len(iface.InterfaceDef.Properties))
	for _, p := range iface.InterfaceDef.Properties {
		out = append(out, ParamDoc{
			Name:     p.Name,
			JsDoc:    p.JsDoc,
			TsType:   flatten(p.TsType),
			Optional: isOptional(p.TsType),
		})
	}
	return out
}

func outputDocs(iface *InterfaceNode) []OutputDoc {
	if iface == nil {
		return []OutputDoc{}
	}
	out := make([]OutputDoc, 0, len(iface.InterfaceDef.Properties))
	for _, p := range iface.InterfaceDef.Properties {
		out = append(out, OutputDoc{
			Name:   p.Name,
			JsDoc:  p.JsDoc,
			TsType: flatten(p.TsType),
		})
	}
	return out
}

func isNullish(t TsType) bool {
	return t.Repr == "undefined" || t.Repr == "null"
}

// isOptional reports whether t is a union with an undefined or null member.
func isOptional(t *TsType) bool {
	if t == nil || t.Kind != "union" {
		return false
	}
	for _, m := range t.Union {
		if isNullish(m) {
			return true
		}
	}
	return false
}

// flatten reduces {X, undefined, null} to X. Every other shape, including
// {X, undefined}, is returned unchanged.
func flatten(t *TsType) *TsType {
	if t == nil || t.Kind != "union" || len(t.Union) != 3 {
		return t
	}
	var hasUndefined, hasNull bool
	var rest *TsType
	for i := range t.Union {
		switch t.Union[i].Repr {
		case "undefined":
			hasUndefined = true
		case "null":
			hasNull = true
		default:
			if rest == nil {
				rest = &t.Union[i]
			}
		}
	}
	if !hasUndefined || !hasNull {
		return t
	}
	return rest
}

// tagExamples renders "name: value," lines from @example tags, one line per
// tag, indented by indent spaces.
func tagExamples(params []ParamDoc, indent int) string {
	space := strings.Repeat(" ", indent)
	var lines []string
	for _, p := range params {
		if p.JsDoc == nil {
			continue
		}
		for _, tag := range p.JsDoc.Tags {
			if tag.Kind == "example" && tag.Doc != "" {
				lines = append(lines, fmt.Sprintf("%s%s: %s,", space, p.Name, tag.Doc))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// matchExample returns the first example labelled with the resource anchor.
func matchExample(anchor string, examples []Example) *string {
	for _, e := range examples {
		if e.Resource == anchor {
			s := strings.ToValidUTF8(string(e.Content), "\uFFFD")
			return &s
		}
	}
	return nil
}
