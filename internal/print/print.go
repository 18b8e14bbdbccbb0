// Package print writes sequences of values to the output of commands, as
// tables, JSON or YAML documents.
package print

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Writer is a stream of values written to an output.
type Writer[T any] interface {
	Write(values ...T) error
	Close() error
}

// Format is the output format of a command.
type Format string

const (
	Text Format = "text"
	JSON Format = "json"
	YAML Format = "yaml"
)

func (f Format) String() string { return string(f) }

func (f *Format) Set(value string) error {
	switch Format(value) {
	case Text, JSON, YAML:
		*f = Format(value)
		return nil
	default:
		return fmt.Errorf("unsupported output format: %q (not one of text, json, yaml)", value)
	}
}

// NewWriter returns a writer for the format. Text output is written as a
// table.
func NewWriter[T any](w io.Writer, format Format, opts ...TableOption[T]) Writer[T] {
	switch format {
	case JSON:
		return NewJSONWriter[T](w)
	case YAML:
		return NewYAMLWriter[T](w)
	default:
		return NewTableWriter[T](w, opts...)
	}
}

// NewJSONWriter returns a writer encoding each value as an indented JSON
// document.
func NewJSONWriter[T any](w io.Writer) Writer[T] {
	e := json.NewEncoder(w)
	e.SetEscapeHTML(false)
	e.SetIndent("", "  ")
	return jsonWriter[T]{e}
}

type jsonWriter[T any] struct{ *json.Encoder }

func (w jsonWriter[T]) Write(values ...T) error {
	for i := range values {
		if err := w.Encode(values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w jsonWriter[T]) Close() error { return nil }

// NewYAMLWriter returns a writer encoding each value as a YAML document of a
// multi-document stream.
func NewYAMLWriter[T any](w io.Writer) Writer[T] {
	e := yaml.NewEncoder(w)
	e.SetIndent(2)
	return yamlWriter[T]{e}
}

type yamlWriter[T any] struct{ *yaml.Encoder }

func (w yamlWriter[T]) Write(values ...T) error {
	for i := range values {
		if err := w.Encode(values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w yamlWriter[T]) Close() error {
	err := w.Encoder.Close()
	if err != nil {
		// Closing an encoder that never wrote a document.
		if s := err.Error(); s == `yaml: expected STREAM-START` {
			err = nil
		}
	}
	return err
}
