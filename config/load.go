package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// ValidationError describes one field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of field-level validation failures.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// applyDefaults walks cfg's fields and assigns the value in a `default:"..."`
// struct tag to any field that is still its zero value.
func applyDefaults(v reflect.Value) {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr())
			continue
		}
		def, ok := sf.Tag.Lookup("default")
		if !ok || !field.IsZero() {
			continue
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(def)
		case reflect.Bool:
			if b, err := strconv.ParseBool(def); err == nil {
				field.SetBool(b)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if n, err := strconv.ParseInt(def, 10, 64); err == nil {
				field.SetInt(n)
			}
		case reflect.Float32, reflect.Float64:
			if f, err := strconv.ParseFloat(def, 64); err == nil {
				field.SetFloat(f)
			}
		}
	}
}

// Validate checks cfg against its `validate:"..."` struct tags (see
// github.com/go-playground/validator/v10's tag syntax) and returns
// ValidationErrors describing every failing field, or nil if cfg is valid.
func Validate[T any](cfg *T) error {
	if err := structValidator.Struct(cfg); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		out := make(ValidationErrors, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, ValidationError{
				Field:   fe.Namespace(),
				Message: fmt.Sprintf("failed on %q", fe.Tag()),
			})
		}
		return out
	}
	return nil
}

// Load reads path as JSON into a new T, applies `default:"..."` struct-tag
// defaults to zero-valued fields, validates the result, and returns it.
func Load[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := new(T)
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(reflect.ValueOf(cfg))
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv populates a new T entirely from environment variables. Each
// exported field maps to PREFIX_FIELDNAME (uppercase); nested structs are
// flattened with an underscore separator.
func LoadFromEnv[T any](prefix string) (*T, error) {
	cfg := new(T)
	mergeEnvInto(reflect.ValueOf(cfg).Elem(), prefix)
	applyDefaults(reflect.ValueOf(cfg))
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeEnv overlays environment variable values onto an existing config,
// only overriding fields whose corresponding PREFIX_FIELDNAME variable is set.
func MergeEnv[T any](cfg *T, prefix string) {
	mergeEnvInto(reflect.ValueOf(cfg).Elem(), prefix)
}

func mergeEnvInto(v reflect.Value, prefix string) {
	if v.Kind() != reflect.Struct {
		return
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)
		if !field.CanSet() {
			continue
		}
		envName := strings.ToUpper(prefix + "_" + sf.Name)
		if field.Kind() == reflect.Struct {
			mergeEnvInto(field, envName)
			continue
		}
		raw, ok := os.LookupEnv(envName)
		if !ok {
			continue
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Bool:
			if b, err := strconv.ParseBool(raw); err == nil {
				field.SetBool(b)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				field.SetInt(n)
			}
		case reflect.Float32, reflect.Float64:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				field.SetFloat(f)
			}
		}
	}
}
