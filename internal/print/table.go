package print

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"

	"golang.org/x/exp/slices"
)

type TableOption[T any] func(*tableWriter[T])

// Header enables or disables the line of column names.
func Header[T any](enable bool) TableOption[T] {
	return func(t *tableWriter[T]) { t.header = enable }
}

// OrderBy sorts the rows of the table before writing them.
func OrderBy[T any](less func(T, T) bool) TableOption[T] {
	return func(t *tableWriter[T]) { t.orderBy = less }
}

// NewTableWriter returns a writer formatting values as the rows of a table.
//
// T must be a struct type. The columns are its exported fields, named after
// the `text` tag of the field when it has one; fields tagged with "-" are
// skipped. The table is written when the writer is closed.
func NewTableWriter[T any](w io.Writer, opts ...TableOption[T]) Writer[T] {
	t := &tableWriter[T]{output: w, header: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type tableWriter[T any] struct {
	output  io.Writer
	values  []T
	header  bool
	orderBy func(T, T) bool
}

func (t *tableWriter[T]) Write(values ...T) error {
	t.values = append(t.values, values...)
	return nil
}

func (t *tableWriter[T]) Close() error {
	if t.orderBy != nil {
		slices.SortStableFunc(t.values, t.orderBy)
	}

	var columns []string
	var fields [][]int
	for _, f := range reflect.VisibleFields(reflect.TypeOf((*T)(nil)).Elem()) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name := f.Name
		if tag, _, _ := strings.Cut(f.Tag.Get("text"), ","); tag != "" {
			name = tag
		}
		if name == "-" {
			continue
		}
		columns = append(columns, name)
		fields = append(fields, f.Index)
	}

	tw := tabwriter.NewWriter(t.output, 0, 4, 2, ' ', 0)
	if t.header {
		if _, err := io.WriteString(tw, strings.Join(columns, "\t")+"\n"); err != nil {
			return err
		}
	}
	row := make([]string, len(fields))
	for i := range t.values {
		v := reflect.ValueOf(&t.values[i]).Elem()
		for j, index := range fields {
			row[j] = formatField(v.FieldByIndex(index))
		}
		if _, err := io.WriteString(tw, strings.Join(row, "\t")+"\n"); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func formatField(v reflect.Value) string {
	switch x := v.Interface().(type) {
	case fmt.Stringer:
		return x.String()
	case []string:
		return strings.Join(x, ", ")
	default:
		return fmt.Sprint(x)
	}
}
