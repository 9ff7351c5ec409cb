package docgen

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadGraph(t *testing.T) []Node {
	t.Helper()
	data, err := os.ReadFile("testdata/provider_graph.json")
	require.NoError(t, err)
	nodes, err := ParseGraph(data)
	require.NoError(t, err)
	return nodes
}

// ---------------------------------------------------------------------------
// ParseGraph
// ---------------------------------------------------------------------------

func TestParseGraph_Variants(t *testing.T) {
	nodes := loadGraph(t)
	require.Len(t, nodes, 7)

	if _, ok := nodes[0].(*OtherNode); !ok {
		t.Errorf("nodes[0] = %T, want *OtherNode", nodes[0])
	}
	if nodes[0].NodeKind() != "import" {
		t.Errorf("nodes[0].NodeKind() = %q, want import", nodes[0].NodeKind())
	}
	c, ok := nodes[1].(*ClassNode)
	require.True(t, ok, "nodes[1] = %T, want *ClassNode", nodes[1])
	assert.Equal(t, ProviderBase, c.ClassDef.Extends)
	assert.Equal(t, "ProviderConfig", configTypeName(c))

	i, ok := nodes[2].(*InterfaceNode)
	require.True(t, ok, "nodes[2] = %T, want *InterfaceNode", nodes[2])
	assert.Len(t, i.InterfaceDef.Properties, 2)
}

func TestParseGraph_Envelope(t *testing.T) {
	data := []byte(`{"version": 1, "nodes": [{"kind":"class","name":"P","classDef":{"extends":"MashinProvider"}}]}`)
	nodes, err := ParseGraph(data)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "P", nodes[0].NodeName())
}

func TestParseGraph_Malformed(t *testing.T) {
	for _, in := range []string{"", "   ", "{not json", `[{"kind": 3}]`, `"string"`} {
		if _, err := ParseGraph([]byte(in)); err == nil {
			t.Errorf("ParseGraph(%q) expected error", in)
		}
	}
}

func TestTsType_PreservesRawJSON(t *testing.T) {
	in := `{"repr":"string","kind":"keyword","keyword":"string"}`
	var ty TsType
	require.NoError(t, json.Unmarshal([]byte(in), &ty))
	out, err := json.Marshal(ty)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))

	built, err := json.Marshal(TsType{Repr: "number", Kind: "keyword"})
	require.NoError(t, err)
	assert.Contains(t, string(built), `"repr":"number"`)
}

// ---------------------------------------------------------------------------
// Synthesize
// ---------------------------------------------------------------------------

func TestSynthesize_ProviderAndResource(t *testing.T) {
	items := Synthesize("neon", loadGraph(t), nil)
	require.Len(t, items, 2)

	p, ok := items[0].(ProviderItem)
	require.True(t, ok, "items[0] = %T, want ProviderItem", items[0])
	assert.Equal(t, "provider", p.Kind)
	assert.Equal(t, "Neon database provider.", p.JsDoc.Doc)
	require.Len(t, p.Params, 2)

	assert.Equal(t, "apiKey", p.Params[0].Name)
	assert.False(t, p.Params[0].Optional)
	assert.Equal(t, "string", p.Params[0].TsType.Repr)

	region := p.Params[1]
	assert.True(t, region.Optional, "region should be optional")
	assert.Equal(t, "string", region.TsType.Repr, "three-member union should flatten")
	assert.Nil(t, region.JsDoc)

	require.NotNil(t, p.Example)
	assert.Equal(t, "new neon.Provider(\"neon_name\", {\n  apiKey: Deno.env.get(\"NEON_API_KEY\"),\n});", *p.Example)

	r, ok := items[1].(ResourceItem)
	require.True(t, ok, "items[1] = %T, want ResourceItem", items[1])
	assert.Equal(t, "resource", r.Kind)
	assert.Equal(t, "DatabaseInstance", r.Name)
	assert.Equal(t, "database_instance", r.Anchor)

	require.Len(t, r.Params, 2)
	size := r.Params[0]
	assert.True(t, size.Optional)
	assert.Equal(t, "union", size.TsType.Kind, "two-member union must not flatten")
	assert.Len(t, size.TsType.Union, 2)

	require.Len(t, r.Output, 1, "first DatabaseOutput interface wins")
	assert.Equal(t, "host", r.Output[0].Name)

	require.NotNil(t, r.Example)
	want := "new neon.DatabaseInstance(\n  \"database_instance_name\",\n  {\n    size: \"small\",\n    replicas: 2,\n  },\n  { provider }\n);"
	assert.Equal(t, want, *r.Example)
}

func TestSynthesize_ExampleFileWins(t *testing.T) {
	examples := []Example{
		{Resource: "other", Content: []byte("ignored")},
		{Resource: "database_instance", Content: []byte("const db = new neon.DatabaseInstance(\"db\");\n")},
		{Resource: "database_instance", Content: []byte("second match ignored")},
	}
	items := Synthesize("neon", loadGraph(t), examples)
	require.Len(t, items, 2)

	r := items[1].(ResourceItem)
	require.NotNil(t, r.Example)
	assert.Equal(t, "const db = new neon.DatabaseInstance(\"db\");\n", *r.Example)
}

func TestSynthesize_ExampleSource(t *testing.T) {
	const fromTags = "new neon.DatabaseInstance(\n  \"database_instance_name\",\n  {\n    size: \"small\",\n    replicas: 2,\n  },\n  { provider }\n);"

	tests := []struct {
		name     string
		examples []Example
		want     string
	}{
		{name: "no example files", want: fromTags},
		{name: "files for other resources", examples: []Example{{Resource: "database", Content: []byte("x")}, {Resource: "branch", Content: []byte("y")}}, want: fromTags},
		{name: "anchor must match exactly", examples: []Example{{Resource: "Database_Instance", Content: []byte("x")}}, want: fromTags},
		{name: "matching file", examples: []Example{{Resource: "database_instance", Content: []byte("from file")}}, want: "from file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Synthesize("neon", loadGraph(t), tt.examples)[1].(ResourceItem)
			require.NotNil(t, r.Example)
			assert.Equal(t, tt.want, *r.Example)
		})
	}
}

func TestSynthesize_ExampleWithoutTags(t *testing.T) {
	nodes := []Node{
		&ClassNode{Name: "Provider", ClassDef: ClassDef{Extends: ProviderBase}},
		&ClassNode{Name: "Bucket", ClassDef: ClassDef{Extends: ResourceBase}},
	}

	r := Synthesize("s3", nodes, nil)[1].(ResourceItem)
	assert.Nil(t, r.Example, "no file and no @example tags")

	r = Synthesize("s3", nodes, []Example{{Resource: "bucket", Content: []byte("const b = new s3.Bucket(\"b\");")}})[1].(ResourceItem)
	require.NotNil(t, r.Example)
	assert.Equal(t, "const b = new s3.Bucket(\"b\");", *r.Example)
}

func TestSynthesize_InvalidUTF8Example(t *testing.T) {
	examples := []Example{{Resource: "database_instance", Content: []byte{'a', 0xff, 'b'}}}
	r := Synthesize("neon", loadGraph(t), examples)[1].(ResourceItem)
	assert.Equal(t, "a\uFFFDb", *r.Example)
}

func TestSynthesize_NoProvider(t *testing.T) {
	var nodes []Node
	for _, n := range loadGraph(t) {
		if c, ok := n.(*ClassNode); ok && c.ClassDef.Extends == ProviderBase {
			continue
		}
		nodes = append(nodes, n)
	}
	items := Synthesize("neon", nodes, nil)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestSynthesize_NoResources(t *testing.T) {
	var nodes []Node
	for _, n := range loadGraph(t) {
		if c, ok := n.(*ClassNode); ok && c.ClassDef.Extends == ResourceBase {
			continue
		}
		nodes = append(nodes, n)
	}
	assert.Empty(t, Synthesize("neon", nodes, nil))
}

func TestSynthesize_MissingInterfaces(t *testing.T) {
	nodes := []Node{
		&ClassNode{Name: "Provider", ClassDef: ClassDef{Extends: ProviderBase}},
		&ClassNode{Name: "Bucket", ClassDef: ClassDef{
			Extends:         ResourceBase,
			Constructors:    []Constructor{{Params: []Param{{Name: "name"}, {Name: "config", TsType: &TsType{Repr: "Missing"}}}}},
			SuperTypeParams: []TsType{{Repr: "AlsoMissing"}},
		}},
	}
	items := Synthesize("s3", nodes, nil)
	require.Len(t, items, 2)

	p := items[0].(ProviderItem)
	assert.Empty(t, p.Params)
	assert.NotNil(t, p.Params)
	assert.Nil(t, p.Example)

	r := items[1].(ResourceItem)
	assert.Empty(t, r.Params)
	assert.Empty(t, r.Output)
	assert.Nil(t, r.Example)
	assert.Equal(t, "bucket", r.Anchor)
}

func TestSynthesize_ResourcesKeepGraphOrder(t *testing.T) {
	nodes := []Node{
		&ClassNode{Name: "Zone", ClassDef: ClassDef{Extends: ResourceBase}},
		&ClassNode{Name: "Provider", ClassDef: ClassDef{Extends: ProviderBase}},
		&ClassNode{Name: "Record", ClassDef: ClassDef{Extends: ResourceBase}},
		&ClassNode{Name: "Second", ClassDef: ClassDef{Extends: ProviderBase}},
	}
	items := Synthesize("dns", nodes, nil)
	require.Len(t, items, 3)
	assert.Equal(t, "Zone", items[1].(ResourceItem).Name)
	assert.Equal(t, "Record", items[2].(ResourceItem).Name)
}

func TestSynthesize_Deterministic(t *testing.T) {
	examples := []Example{{Resource: "database_instance", Content: []byte("example")}}
	first, err := json.Marshal(Synthesize("neon", loadGraph(t), examples))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(Synthesize("neon", loadGraph(t), examples))
		require.NoError(t, err)
		if !bytes.Equal(first, again) {
			t.Fatalf("run %d produced different output", i)
		}
	}
}

func TestSynthesize_JSONShape(t *testing.T) {
	out, err := json.Marshal(Synthesize("neon", loadGraph(t), nil))
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded, 2)

	assert.Equal(t, "provider", decoded[0]["kind"])
	_, hasName := decoded[0]["name"]
	assert.False(t, hasName, "provider item has no name")

	assert.Equal(t, "resource", decoded[1]["kind"])
	assert.Equal(t, "database_instance", decoded[1]["anchor"])
	outputs := decoded[1]["output"].([]any)
	_, hasOptional := outputs[0].(map[string]any)["optional"]
	assert.False(t, hasOptional, "outputs carry no optional flag")

	// Raw type JSON is passed through untouched.
	assert.True(t, strings.Contains(string(out), `"keyword":"string"`))
}

// ---------------------------------------------------------------------------
// flatten / isOptional
// ---------------------------------------------------------------------------

func union(reprs ...string) *TsType {
	t := &TsType{Kind: "union"}
	for _, r := range reprs {
		t.Union = append(t.Union, TsType{Repr: r, Kind: "keyword"})
	}
	return t
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		name     string
		in       *TsType
		wantRepr string
		wantKind string
	}{
		{"X undefined null", union("string", "undefined", "null"), "string", "keyword"},
		{"null first", union("null", "number", "undefined"), "number", "keyword"},
		{"X undefined", union("string", "undefined"), "", "union"},
		{"X null", union("string", "null"), "", "union"},
		{"three non-null", union("a", "b", "c"), "", "union"},
		{"four members", union("a", "b", "undefined", "null"), "", "union"},
		{"not a union", &TsType{Repr: "string", Kind: "keyword"}, "string", "keyword"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := flatten(tt.in)
			if got.Repr != tt.wantRepr || got.Kind != tt.wantKind {
				t.Errorf("flatten() = {%q %q}, want {%q %q}", got.Repr, got.Kind, tt.wantRepr, tt.wantKind)
			}
		})
	}

	if flatten(nil) != nil {
		t.Error("flatten(nil) != nil")
	}
}

func TestIsOptional(t *testing.T) {
	tests := []struct {
		name string
		in   *TsType
		want bool
	}{
		{"nil", nil, false},
		{"keyword", &TsType{Repr: "string", Kind: "keyword"}, false},
		{"undefined member", union("string", "undefined"), true},
		{"null member", union("string", "null"), true},
		{"no nullish member", union("string", "number"), false},
		{"bare undefined keyword", &TsType{Repr: "undefined", Kind: "keyword"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isOptional(tt.in); got != tt.want {
				t.Errorf("isOptional() = %v, want %v", got, tt.want)
			}
		})
	}
}
