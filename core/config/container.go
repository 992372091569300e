// Package config loads plugin configuration files into typed values. Files are
// written in TOML or YAML depending on their extension, and keys missing from
// a file are filled in from the defaults of the configuration type.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultFileName is the file loaded when no WithFileName option is passed.
const DefaultFileName = "config.toml"

// ErrUnsupportedFormat is returned when the configuration file has an extension
// that no codec is registered for.
var ErrUnsupportedFormat = errors.New("unsupported configuration format")

// Option changes how a Container is loaded.
type Option func(*options)

type options struct {
	fileName string
	header   string
}

// WithFileName sets the name of the file inside the directory passed to Load.
func WithFileName(name string) Option {
	return func(o *options) {
		o.fileName = name
	}
}

// WithHeader sets a comment written at the top of the file on every save.
func WithHeader(header string) Option {
	return func(o *options) {
		o.header = header
	}
}

// Container holds a configuration value of type C backed by a file on disk.
// Get is safe for concurrent use. Reload, Save and Update serialise on an
// internal mutex.
type Container[C any] struct {
	mu       sync.Mutex
	path     string
	header   string
	codec    codec
	defaults func() C
	value    atomic.Pointer[C]
}

// Load reads the configuration file inside dir, creating it from defaults when
// it does not exist yet. defaults may be nil, in which case the zero value of C
// is used. The file is saved after loading so that keys added to C since the
// file was written show up on disk.
func Load[C any](dir string, defaults func() C, opts ...Option) (*Container[C], error) {
	o := options{fileName: DefaultFileName}
	for _, opt := range opts {
		opt(&o)
	}
	c, ok := codecFor(o.fileName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, o.fileName)
	}
	if defaults == nil {
		defaults = func() C {
			var zero C
			return zero
		}
	}
	container := &Container[C]{
		path:     filepath.Join(dir, o.fileName),
		header:   o.header,
		codec:    c,
		defaults: defaults,
	}
	if err := container.Reload(); err != nil {
		return nil, err
	}
	return container, nil
}

// Path returns the path of the file backing the container.
func (c *Container[C]) Path() string {
	return c.path
}

// Get returns the current configuration value. The pointer stays valid across
// reloads, but a reload replaces the value returned by subsequent calls.
func (c *Container[C]) Get() *C {
	return c.value.Load()
}

// Reload reads the file again, replacing the current value.
func (c *Container[C]) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, err := c.read()
	if err != nil {
		return fmt.Errorf("could not load %s file: %w", filepath.Base(c.path), err)
	}
	c.value.Store(value)
	return c.saveLocked()
}

// Save writes the current value to disk.
func (c *Container[C]) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

// Update calls fn with a copy of the current value, then stores and saves the
// result. Values returned by Get before are left untouched, so fn must clone
// maps and slices before changing them.
func (c *Container[C]) Update(fn func(*C)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	value := *c.value.Load()
	fn(&value)
	c.value.Store(&value)
	return c.saveLocked()
}

func (c *Container[C]) read() (*C, error) {
	def := c.defaults()
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &def, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return &def, nil
	}

	var value C
	if err := c.codec.unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	present, err := c.codec.tree(data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	dst, src := reflect.ValueOf(&value).Elem(), reflect.ValueOf(&def).Elem()
	if dst.Kind() == reflect.Struct {
		copyDefaults(c.codec, dst, src, present)
	}
	return &value, nil
}

func (c *Container[C]) saveLocked() error {
	data, err := c.codec.marshal(c.value.Load())
	if err != nil {
		return fmt.Errorf("could not save %s file: %w", filepath.Base(c.path), err)
	}
	if c.header != "" {
		data = append([]byte(commentBlock(c.header)), data...)
	}
	if err := writeFile(c.path, data); err != nil {
		return fmt.Errorf("could not save %s file: %w", filepath.Base(c.path), err)
	}
	return nil
}

// copyDefaults sets every field of dst whose key is absent from present to the
// value of the same field in def. Nested structs are merged field by field;
// maps and slices found in the file are kept as they are.
func copyDefaults(c codec, dst, def reflect.Value, present map[string]any) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		key, ok := c.key(t.Field(i))
		if !ok {
			continue
		}
		raw, found := lookup(present, key)
		if !found {
			dst.Field(i).Set(def.Field(i))
			continue
		}
		if t.Field(i).Type.Kind() != reflect.Struct {
			continue
		}
		if sub, ok := raw.(map[string]any); ok {
			copyDefaults(c, dst.Field(i), def.Field(i), sub)
		}
	}
}

func lookup(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func commentBlock(header string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(header, "\n"), "\n") {
		if line == "" {
			b.WriteString("#\n")
			continue
		}
		b.WriteString("# ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
