package config

import (
	"bytes"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// codec encodes a configuration value in one file format.
type codec interface {
	marshal(v any) ([]byte, error)
	unmarshal(data []byte, v any) error
	// tree decodes data into a generic map so that present keys can be told
	// apart from keys that were left out of the file.
	tree(data []byte) (map[string]any, error)
	// key returns the key a struct field is stored under. It returns false if
	// the field is not encoded at all.
	key(f reflect.StructField) (string, bool)
}

func codecFor(fileName string) (codec, bool) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".toml":
		return tomlCodec{}, true
	case ".yml", ".yaml":
		return yamlCodec{}, true
	}
	return nil, false
}

type tomlCodec struct{}

func (tomlCodec) marshal(v any) ([]byte, error) {
	return toml.Marshal(v)
}

func (tomlCodec) unmarshal(data []byte, v any) error {
	return toml.Unmarshal(data, v)
}

func (tomlCodec) tree(data []byte) (map[string]any, error) {
	t, err := toml.LoadBytes(data)
	if err != nil {
		return nil, err
	}
	return t.ToMap(), nil
}

func (tomlCodec) key(f reflect.StructField) (string, bool) {
	return tagKey(f, "toml", f.Name)
}

type yamlCodec struct{}

func (yamlCodec) marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (yamlCodec) unmarshal(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

func (yamlCodec) tree(data []byte) (map[string]any, error) {
	m := map[string]any{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (yamlCodec) key(f reflect.StructField) (string, bool) {
	return tagKey(f, "yaml", strings.ToLower(f.Name))
}

func tagKey(f reflect.StructField, tag, fallback string) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
	switch name {
	case "-":
		return "", false
	case "":
		return fallback, true
	}
	return name, true
}
