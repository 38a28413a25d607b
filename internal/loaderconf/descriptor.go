// Package loaderconf discovers and parses LoaderDescriptor files: one
// plain-text config per decoder binary, mapping MIME types to the
// sandboxed executable that decodes them.
package loaderconf

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// MimeList is a list of MIME type strings that supports both the plain
// scalar form ("image/png") and a YAML sequence, the same dual-shape
// pattern used elsewhere in this codebase for mixed-format config lists.
type MimeList []string

func (ml *MimeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*ml = MimeList{value.Value}
		return nil
	case yaml.SequenceNode:
		var out MimeList
		for _, item := range value.Content {
			out = append(out, item.Value)
		}
		*ml = out
		return nil
	default:
		return &yaml.TypeError{Errors: []string{"expected scalar or sequence for mime_types"}}
	}
}

// LoaderDescriptor describes one decoder binary and the MIME types it
// handles, loaded from a .conf (YAML) file under a glycin-loaders
// directory.
type LoaderDescriptor struct {
	// Exec is the absolute path to the decoder binary.
	Exec string `yaml:"exec"`

	// MimeTypes lists the MIME types this loader can decode.
	MimeTypes MimeList `yaml:"mime_types"`

	// ExtraSyscalls names additional allow-listed syscalls this loader's
	// seccomp filter needs beyond the base allow-set (e.g. a codec that
	// needs mmap2 on a 32-bit compat path).
	ExtraSyscalls []string `yaml:"extra_syscalls,omitempty"`

	// SandboxLevel overrides the default sandbox strictness for this
	// loader ("strict", "standard", "network").
	SandboxLevel string `yaml:"sandbox_level,omitempty"`

	// sourcePath records which file this descriptor was parsed from, for
	// override-precedence logging.
	sourcePath string
}

// Load parses a single LoaderDescriptor file.
func Load(path string) (*LoaderDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d LoaderDescriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	d.sourcePath = path
	return &d, nil
}

// LoadDir parses every *.conf file in dir, returning one descriptor per
// file. Malformed files are skipped with the error recorded, not fatal —
// one bad loader config shouldn't take down every other loader.
func LoadDir(dir string) ([]*LoaderDescriptor, map[string]error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil
	}
	var out []*LoaderDescriptor
	errs := make(map[string]error)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".conf") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		d, err := Load(path)
		if err != nil {
			errs[path] = err
			continue
		}
		out = append(out, d)
	}
	return out, errs
}
