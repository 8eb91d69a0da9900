package config

import (
	"reflect"
	"strings"
)

// Lookup resolves a dot-separated path of yaml key names, e.g.
// "app.validation.min_length.phone", and returns def when any segment is
// missing. Struct fields are matched by their yaml tag; map keys by string.
func (c *Config) Lookup(path string, def any) any {
	if path == "" {
		return def
	}
	current := reflect.ValueOf(*c)
	for _, key := range strings.Split(path, ".") {
		next, ok := descend(current, key)
		if !ok {
			return def
		}
		current = next
	}
	if !current.IsValid() || !current.CanInterface() {
		return def
	}
	return current.Interface()
}

// LookupString is Lookup for string values; a value of another type yields def.
func (c *Config) LookupString(path, def string) string {
	if s, ok := c.Lookup(path, def).(string); ok {
		return s
	}
	return def
}

// LookupInt is Lookup for int values; a value of another type yields def.
func (c *Config) LookupInt(path string, def int) int {
	if n, ok := c.Lookup(path, def).(int); ok {
		return n
	}
	return def
}

func descend(v reflect.Value, key string) (reflect.Value, bool) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			if name == key {
				return v.Field(i), true
			}
		}
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, false
		}
		item := v.MapIndex(reflect.ValueOf(key).Convert(v.Type().Key()))
		if item.IsValid() {
			return item, true
		}
	}
	return reflect.Value{}, false
}
