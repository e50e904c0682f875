package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

const fabricYAML = `
version: v1
fabric:
  entities:
    - {guid: "0xa", node: hca-a, kind: adapter, lids: [1], ports: 1}
    - {guid: "0x10", node: sw1, kind: switch, lids: [10], ports: 2, routes: [{port: 1, lids: [1]}, {port: 2, lids: [2]}]}
    - {guid: "0xb", node: hca-b, kind: adapter, lids: [2], ports: 1}
  links:
    - {from: {node: hca-a, port: 1}, to: {node: sw1, port: 1}}
    - {from: {node: sw1, port: 2}, to: {node: hca-b, port: 1}}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fabric.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun(t *testing.T) {
	var buf bytes.Buffer
	o := options{config: writeConfig(t, fabricYAML), source: "hca-a", targets: "hca-b, sw1,"}
	if err := run(context.Background(), o, &buf); err != nil {
		t.Fatalf("run: %v", err)
	}

	var doc struct {
		Report struct {
			Targets  int            `yaml:"targets"`
			Outcomes map[string]int `yaml:"outcomes"`
		} `yaml:"report"`
		Entries []struct {
			Node string `yaml:"node"`
			GUID string `yaml:"guid"`
			Hops int    `yaml:"hops"`
		} `yaml:"entries"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, buf.String())
	}
	if doc.Report.Targets != 2 || doc.Report.Outcomes["ok"] != 2 {
		t.Errorf("unexpected report %+v", doc.Report)
	}
	if len(doc.Entries) != 2 || doc.Entries[0].Node != "hca-b" || doc.Entries[0].Hops != 2 {
		t.Errorf("unexpected entries %+v", doc.Entries)
	}
	if doc.Entries[0].GUID != "0x000000000000000b" {
		t.Errorf("GUID should render as hex, got %q", doc.Entries[0].GUID)
	}
}

func TestRunErrors(t *testing.T) {
	good := writeConfig(t, fabricYAML)
	bad := writeConfig(t, strings.Replace(fabricYAML, "node: hca-b, port: 1", "node: hca-z, port: 1", 1))

	cases := []struct {
		name string
		o    options
	}{
		{name: "missing source", o: options{config: good}},
		{name: "missing config", o: options{config: filepath.Join(t.TempDir(), "nope.yaml"), source: "hca-a"}},
		{name: "invalid fabric", o: options{config: bad, source: "hca-a"}},
		{name: "unknown source", o: options{config: good, source: "ghost"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := run(context.Background(), tc.o, &bytes.Buffer{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, b ,,c ")
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("splitList = %q", got)
	}
	if splitList("") != nil {
		t.Error("empty input should give no targets")
	}
}
