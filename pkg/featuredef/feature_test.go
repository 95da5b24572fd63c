package featuredef

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

const greetingYAML = `
identifier: GreetingProvider
displayName: Greeting Provider
originator: org.silastandard
category: examples
featureVersion: "1.0"
commands:
  - identifier: SayHello
    parameters:
      - identifier: Name
        dataType: {basic: String}
    responses:
      - identifier: Greeting
        dataType: {basic: String}
properties:
  - identifier: StartYear
    dataType:
      constrained:
        base: {basic: Integer}
        constraints:
          minimalInclusive: "1900"
          maximalExclusive: "2100"
dataTypes:
  - identifier: Names
    dataType:
      list: {basic: String}
errors:
  - identifier: NoName
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(greetingYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if f.Identifier != "GreetingProvider" || f.Originator != "org.silastandard" || f.Category != "examples" {
		t.Errorf("header = %q %q %q", f.Identifier, f.Originator, f.Category)
	}
	if major, err := f.MajorVersion(); err != nil || major != 1 {
		t.Errorf("MajorVersion() = %d, %v", major, err)
	}
	if len(f.Commands) != 1 || f.Commands[0].Parameters[0].DataType.Basic != "String" {
		t.Fatalf("commands = %+v", f.Commands)
	}

	c := f.Properties[0].DataType.Constrained
	if c == nil || c.Base.Basic != "Integer" {
		t.Fatalf("constrained = %+v", c)
	}
	if c.Constraints.MinimalInclusive == nil || *c.Constraints.MinimalInclusive != "1900" {
		t.Errorf("minimalInclusive = %v", c.Constraints.MinimalInclusive)
	}
	if c.Constraints.MaximalExclusive == nil || *c.Constraints.MaximalExclusive != "2100" {
		t.Errorf("maximalExclusive = %v", c.Constraints.MaximalExclusive)
	}
	if f.DataTypes[0].DataType.List == nil || f.DataTypes[0].DataType.List.Basic != "String" {
		t.Errorf("dataTypes = %+v", f.DataTypes)
	}
}

func TestParseMissingIdentifier(t *testing.T) {
	if _, err := Parse([]byte("originator: org.example\n")); err == nil {
		t.Error("expected error for missing identifier")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	f, err := Parse([]byte(greetingYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	data, err := Marshal(f)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	again, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse(Marshal()) failed: %v", err)
	}
	if again.Commands[0].Responses[0].Identifier != "Greeting" || again.Errors[0].Identifier != "NoName" {
		t.Errorf("round trip lost data: %+v", again)
	}
}

func TestConstraintOrder(t *testing.T) {
	f, err := Parse([]byte(greetingYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []string{"minimalInclusive", "maximalExclusive"}
	if got := f.Properties[0].DataType.Constrained.Constraints.Order; !slices.Equal(got, want) {
		t.Errorf("Order = %v, want %v", got, want)
	}

	data, err := Marshal(f)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	again, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse(Marshal()) failed: %v", err)
	}
	if got := again.Properties[0].DataType.Constrained.Constraints.Order; !slices.Equal(got, want) {
		t.Errorf("Order after round trip = %v, want %v", got, want)
	}

	var c Constraints
	if got := c.Position("pattern"); got != 0 {
		t.Errorf("Position on empty order = %d, want 0", got)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "GreetingProvider.yaml")
	if err := os.WriteFile(path, []byte(greetingYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f.Identifier != "GreetingProvider" {
		t.Errorf("identifier = %q", f.Identifier)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestVariants(t *testing.T) {
	tests := []struct {
		name string
		dt   DataType
		want int
	}{
		{"empty", DataType{}, 0},
		{"basic", DataType{Basic: "String"}, 1},
		{"ambiguous", DataType{Basic: "String", List: &DataType{Basic: "String"}}, 2},
	}
	for _, tt := range tests {
		if got := tt.dt.Variants(); got != tt.want {
			t.Errorf("%s: Variants() = %d, want %d", tt.name, got, tt.want)
		}
	}
}
