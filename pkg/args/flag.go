package args

import (
	"flag"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Flag is a command line flag bound to a field of args struct.
type Flag struct {
	// long name of the flag.
	Name string

	// short name of the flag. Optional.
	ShortName string

	Help    string
	MetaVar string

	// when true, the flag must be given on the command line.
	Required bool

	// name of the struct field.
	Field string

	ptr reflect.Value
}

// SetFlag registers f to fs, for both of the long and the short name.
func (f Flag) SetFlag(fs *flag.FlagSet) error {
	v, err := f.value()
	if err != nil {
		return err
	}
	fs.Var(v, f.Name, f.Help)
	if f.ShortName != "" {
		fs.Var(v, f.ShortName, fmt.Sprintf("alias for --%s", f.Name))
	}
	return nil
}

func (f Flag) value() (flag.Value, error) {
	switch dv := f.ptr.Interface().(type) {
	case flag.Value:
		return dv, nil
	case *bool:
		return (*boolValue)(dv), nil
	case *string:
		return scalar(dv, func(s string) (string, error) { return s, nil }, strconv.Quote), nil
	case *int:
		return scalar(dv, strconv.Atoi, strconv.Itoa), nil
	case *int64:
		return scalar(
			dv,
			func(s string) (int64, error) { return strconv.ParseInt(s, 0, 64) },
			func(v int64) string { return strconv.FormatInt(v, 10) },
		), nil
	case *uint:
		return scalar(
			dv,
			func(s string) (uint, error) { v, err := strconv.ParseUint(s, 0, strconv.IntSize); return uint(v), err },
			func(v uint) string { return strconv.FormatUint(uint64(v), 10) },
		), nil
	case *uint64:
		return scalar(
			dv,
			func(s string) (uint64, error) { return strconv.ParseUint(s, 0, 64) },
			func(v uint64) string { return strconv.FormatUint(v, 10) },
		), nil
	case *float64:
		return scalar(dv, parseFloat, formatFloat), nil
	case *time.Duration:
		return scalar(dv, time.ParseDuration, time.Duration.String), nil
	case *[]string:
		return &sliceValue[string]{ptr: dv, parse: func(s string) (string, error) { return s, nil }}, nil
	case *[]int:
		return &sliceValue[int]{ptr: dv, parse: strconv.Atoi}, nil
	case *[]float64:
		return &sliceValue[float64]{ptr: dv, parse: parseFloat}, nil
	default:
		return nil, fmt.Errorf("%w: field %s has type %s", ErrUnsupportedType, f.Field, f.ptr.Type().Elem())
	}
}

// IsBool reports whether f can be given without value.
func (f Flag) IsBool() bool {
	_, ok := f.ptr.Interface().(*bool)
	return ok
}

func (f Flag) String() string {
	str := "--" + f.Name
	if f.ShortName != "" {
		str += "|-" + f.ShortName
	}
	if f.IsBool() {
		return "[" + str + "]"
	}

	metavar := f.MetaVar
	if metavar == "" {
		if v, err := f.value(); err == nil {
			metavar = v.String()
		}
	}
	if metavar == "" {
		metavar = strings.ToUpper(f.Name)
	}
	return str + "=" + metavar
}

type boolValue bool

func (b *boolValue) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*b = boolValue(v)
	return nil
}

func (b *boolValue) String() string   { return strconv.FormatBool(bool(*b)) }
func (b *boolValue) IsBoolFlag() bool { return true }

type scalarValue[T any] struct {
	ptr    *T
	parse  func(string) (T, error)
	format func(T) string
}

func scalar[T any](ptr *T, parse func(string) (T, error), format func(T) string) *scalarValue[T] {
	return &scalarValue[T]{ptr: ptr, parse: parse, format: format}
}

func (v *scalarValue[T]) Set(s string) error {
	x, err := v.parse(s)
	if err != nil {
		return err
	}
	*v.ptr = x
	return nil
}

func (v *scalarValue[T]) String() string {
	if v == nil || v.ptr == nil {
		return ""
	}
	return v.format(*v.ptr)
}

// sliceValue is a repeatable flag. Each value can also be comma separated.
//
// The first Set replaces the default value, and the following Sets append.
type sliceValue[T any] struct {
	ptr     *[]T
	parse   func(string) (T, error)
	touched bool
}

func (v *sliceValue[T]) Set(s string) error {
	if !v.touched {
		*v.ptr = nil
		v.touched = true
	}
	for _, item := range strings.Split(s, ",") {
		x, err := v.parse(strings.TrimSpace(item))
		if err != nil {
			return err
		}
		*v.ptr = append(*v.ptr, x)
	}
	return nil
}

func (v *sliceValue[T]) String() string {
	if v == nil || v.ptr == nil {
		return ""
	}
	items := make([]string, 0, len(*v.ptr))
	for _, x := range *v.ptr {
		items = append(items, fmt.Sprint(x))
	}
	return strings.Join(items, ",")
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
func formatFloat(f float64) string         { return strconv.FormatFloat(f, 'g', -1, 64) }

// snakeCase converts Go identifier into snake_case.
//
//	LearningRate => learning_rate
//	URLPath      => url_path
//	Seed2        => seed2
func snakeCase(name string) string {
	rs := []rune(name)
	b := new(strings.Builder)
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if 0 < i {
				prev := rs[i-1]
				nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteRune('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
