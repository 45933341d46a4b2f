package config

import (
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestExpandEnvStrict_MissingVarErrors(t *testing.T) {
	t.Setenv("PRESENT", "ok")

	_, err := ExpandEnvStrict("a=${PRESENT} b=${MISSING_B} c=${MISSING_A}")
	if !errors.Is(err, ErrMissingEnvironment) {
		t.Fatalf("ExpandEnvStrict() error = %v, want ErrMissingEnvironment", err)
	}
	if !strings.Contains(err.Error(), "MISSING_A, MISSING_B") {
		t.Fatalf("expected sorted missing names in error, got: %v", err)
	}
}

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("X", "y")
	t.Setenv("EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${X}", "y"},
		{"$X-suffix", "y-suffix"},
		{"$$${X}", "$y"},
		{"$$2a$$10$$abc", "$2a$10$abc"},
		{"[${EMPTY}]", "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExpandEnvStrict(tt.in)
			if err != nil {
				t.Fatalf("ExpandEnvStrict() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ExpandEnvStrict() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMapScalars_SkipsKeysAndRetypesPlainScalars(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("KEY_NAME", "renamed")

	var doc yaml.Node
	src := "${KEY_NAME}: 1\nport: ${PORT}\nquoted: \"${PORT}\"\nlist: [a, \"$$b\"]\n"
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if err := mapScalars(&doc, ExpandEnvStrict); err != nil {
		t.Fatalf("mapScalars() error = %v", err)
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got struct {
		Port   int      `yaml:"port"`
		Quoted string   `yaml:"quoted"`
		List   []string `yaml:"list"`
		Raw    int      `yaml:"${KEY_NAME}"`
	}
	if err := yaml.Unmarshal(out, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v\n%s", err, out)
	}
	if got.Port != 8080 {
		t.Errorf("port = %d, want 8080", got.Port)
	}
	if got.Quoted != "8080" {
		t.Errorf("quoted = %q, want %q", got.Quoted, "8080")
	}
	if len(got.List) != 2 || got.List[1] != "$b" {
		t.Errorf("list = %v, want [a $b]", got.List)
	}
	if got.Raw != 1 {
		t.Errorf("mapping key was rewritten: %s", out)
	}
}

func TestMapScalars_ReportsLine(t *testing.T) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte("a: ok\nb: ${NOT_SET_ANYWHERE}\n"), &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	err := mapScalars(&doc, ExpandEnvStrict)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("mapScalars() error = %v, want line 2", err)
	}
}
