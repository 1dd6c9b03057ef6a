// Package structset implements helper functions that involves structs
package structset

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	fieldIndexesCache sync.Map
	timeType          = reflect.TypeOf(time.Time{})
)

// Layouts of timestamps that are accepted when a driver returns them as text.
var timeLayouts = []string{
	time.DateTime,
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	time.DateOnly,
}

// Custom errors.
var (
	ErrNotStructPointer = errors.New("dest must be a non-nil pointer to struct")
	ErrRowLength        = errors.New("row length does not match number of columns")
	ErrUnsupportedKind  = errors.New("unsupported field kind")
)

// Get tag value of field. If tag value is "-", empty string will be returned
// If tag is empty, return name of field.
func getTagValue(field reflect.StructField, tag string) string {
	switch v := field.Tag.Get(tag); v {
	case "-":
		return ""
	case "":
		return field.Name
	default:
		return strings.Split(v, ",")[0]
	}
}

// fieldIndexes returns a map of database column name to struct field index.
// Fields with sql:"-" are derived and never decoded.
func fieldIndexes(structType reflect.Type) map[string]int {
	indexes := make(map[string]int)

	for i := range structType.NumField() {
		if col := getTagValue(structType.Field(i), "sql"); col != "" {
			indexes[col] = i
		}
	}

	return indexes
}

// CachedFieldIndexes is like fieldIndexes, but cached per struct type.
func CachedFieldIndexes(structType reflect.Type) map[string]int {
	if f, ok := fieldIndexesCache.Load(structType); ok {
		return f.(map[string]int) //nolint:forcetypeassert
	}

	indexes := fieldIndexes(structType)
	fieldIndexesCache.Store(structType, indexes)

	return indexes
}

// DecodeRow sets the fields of dest from row values. Columns without a
// matching field are skipped. Values are coerced into the kind of the target
// field so that text protocol values like "42" or "2024-01-01 10:00:00" are
// accepted. NULL values leave the field at its zero value.
func DecodeRow(columns []string, row []any, indexes map[string]int, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrNotStructPointer
	}

	if len(columns) != len(row) {
		return fmt.Errorf("%w: %d columns, %d values", ErrRowLength, len(columns), len(row))
	}

	elem := rv.Elem()

	for i, column := range columns {
		index, ok := indexes[column]
		if !ok {
			continue
		}

		if err := assign(elem.Field(index), row[i]); err != nil {
			return fmt.Errorf("column %s: %w", column, err)
		}
	}

	return nil
}

// assign sets v into field converting it when needed.
func assign(field reflect.Value, v any) error {
	if v == nil {
		field.Set(reflect.Zero(field.Type()))

		return nil
	}

	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	if field.Type() == timeType {
		t, err := toTime(v)
		if err != nil {
			return err
		}

		field.Set(reflect.ValueOf(t))

		return nil
	}

	switch field.Kind() { //nolint:exhaustive
	case reflect.String:
		field.SetString(fmt.Sprint(v))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := toInt(v)
		if err != nil {
			return err
		}

		field.SetInt(i)
	case reflect.Float32, reflect.Float64:
		f, err := toFloat(v)
		if err != nil {
			return err
		}

		field.SetFloat(f)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, field.Kind())
	}

	return nil
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil //nolint:gosec
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, nil
		}

		// Aggregates like SUM() come back as DECIMAL text
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to integer", n)
		}

		return int64(f), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to float", n)
		}

		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range timeLayouts {
			if ts, err := time.ParseInLocation(layout, t, time.UTC); err == nil {
				return ts, nil
			}
		}

		return time.Time{}, fmt.Errorf("cannot parse %q as timestamp", t)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to timestamp", v)
	}
}
