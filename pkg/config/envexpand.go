package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands {{.VAR}} placeholders in YAML content against the
// process environment. Unlike shell-style ${VAR}/$VAR expansion, this
// syntax cannot collide with YAML content that legitimately contains a
// literal dollar sign (regex patterns, shell snippets embedded in a
// pipeline step). Missing variables expand to the empty string; validation
// is expected to catch any required field that ends up empty.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx != -1 {
			env[kv[:idx]] = kv[idx+1:]
		}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
