package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// tomlFile is the TOML layout: a list of [[paper]] tables.
type tomlFile struct {
	Paper []Paper `toml:"paper"`
}

// LoadFile reads a catalog from path. The format follows the extension:
// .json and .yaml/.yml hold a top-level list of papers, .toml a [[paper]] array.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	papers, err := decode(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	return New(papers)
}

func decode(ext string, data []byte) ([]Paper, error) {
	var papers []Paper
	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&papers); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &papers); err != nil {
			return nil, err
		}
	case ".toml":
		var f tomlFile
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, err
		}
		papers = f.Paper
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", ext)
	}
	return papers, nil
}
