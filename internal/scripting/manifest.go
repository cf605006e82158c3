package scripting

import (
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed scripts/*.yaml scripts/*.lua
var builtin embed.FS

// Manifest describes a Lua ruleset.
//
// Precondition: ID and Script must be non-empty after loading.
type Manifest struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	Description      string `yaml:"description"`
	Script           string `yaml:"script"`
	InstructionLimit int    `yaml:"instruction_limit"`

	// Source is the script text, resolved relative to the manifest.
	Source string `yaml:"-"`
}

func parseManifest(data []byte, origin string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing ruleset manifest %s: %w", origin, err)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("ruleset manifest %s: id is required", origin)
	}
	if m.Script == "" {
		return nil, fmt.Errorf("ruleset manifest %s: script is required", origin)
	}
	if m.Name == "" {
		m.Name = m.ID
	}
	return &m, nil
}

// LoadManifest reads a YAML manifest from disk along with its script.
//
// Precondition: p must name a readable file.
// Postcondition: Returns a Manifest with Source populated or a non-nil error.
func LoadManifest(p string) (*Manifest, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	m, err := parseManifest(data, p)
	if err != nil {
		return nil, err
	}
	scriptPath := m.Script
	if !filepath.IsAbs(scriptPath) {
		scriptPath = filepath.Join(filepath.Dir(p), scriptPath)
	}
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("reading script for ruleset %s: %w", m.ID, err)
	}
	m.Source = string(src)
	return m, nil
}

// BuiltinManifest returns the embedded ruleset with the given id.
func BuiltinManifest(id string) (*Manifest, error) {
	name := path.Join("scripts", id+".yaml")
	data, err := builtin.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("no builtin ruleset %q", id)
	}
	m, err := parseManifest(data, name)
	if err != nil {
		return nil, err
	}
	src, err := builtin.ReadFile(path.Join("scripts", m.Script))
	if err != nil {
		return nil, fmt.Errorf("reading builtin script %s: %w", m.Script, err)
	}
	m.Source = string(src)
	return m, nil
}
