package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileShape is the on-disk layout shared by every supported format:
//
//	{"media": [{"key": "media1", "locator": "assets/1.jpeg"}]}
type fileShape struct {
	Media []Entry `json:"media" toml:"media" yaml:"media"`
}

// LoadFile reads a catalog from path. The format follows the extension:
// .json, .toml, .yaml or .yml.
func LoadFile(path string) (*Catalog, error) {
	path = filepath.Clean(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileShape
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &f)
	case ".toml":
		_, err = toml.Decode(string(data), &f)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("catalog load %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog load %s: %w", path, err)
	}
	c, err := New(f.Media...)
	if err != nil {
		return nil, fmt.Errorf("catalog load %s: %w", path, err)
	}
	return c, nil
}

// Save writes the catalog to path as JSON using a temp-file-then-rename strategy
// so readers never see a partially-written file.
func (c *Catalog) Save(path string) error {
	data, err := json.MarshalIndent(fileShape{Media: c.Entries()}, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(filepath.Clean(path))
	tmp, err := os.CreateTemp(dir, ".catalog-*.json.tmp")
	if err != nil {
		return fmt.Errorf("catalog save: create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("catalog save: write: %w", writeErr)
		}
		return fmt.Errorf("catalog save: close: %w", closeErr)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("catalog save: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("catalog save: rename: %w", err)
	}
	return nil
}
