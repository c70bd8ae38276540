// Package args binds node arguments, plain Go structs, to command line flags and JSON/YAML dictionaries.
//
// # Tags
//
//	type FitArgs struct {
//		Data         string        `json:"data" flag:",required,help=path to CSV"`
//		LearningRate float64       `json:"learning_rate" flag:"lr,short=l,help=step size"`
//		Epochs       int           // flag is "epochs"
//		Timeout      time.Duration `flag:",metavar=DURATION"`
//		Internal     string        `json:"-"` // not a flag, not persisted
//	}
//
// The first element of the "flag" tag is the flag name.
// When omitted, the name of the json tag is used, and then the field name in snake_case.
// Attributes are:
//
// - short: short name of the flag.
//
// - help: help message.
//
// - metavar: placeholder of the value in usage. If omitted, the default value is shown.
//
// - required: the flag must be given on the command line.
//
// Fields tagged `flag:"-"` are not flags.
//
// When args implements Validator, Validate is called after each parse or load.
package args

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"reflect"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/opst/savethat/pkg/domain"
	"gopkg.in/yaml.v3"
)

var (
	// ErrHelp is returned when -h or --help is given.
	ErrHelp = flag.ErrHelp

	ErrMissingRequired = errors.New("missing required flag")
	ErrUnsupportedType = errors.New("unsupported type")
	ErrInvalidArgs     = errors.New("invalid args")
)

// Validator is implemented by args types checking their own consistency.
type Validator interface {
	Validate() error
}

// Info is node identity stored together with args.
type Info struct {
	Node    string
	Package string
}

// Binder binds the fields of *Values to flags.
type Binder[A any] struct {
	Flags  []Flag
	Values *A
}

// Bind returns a Binder holding a copy of defaults.
//
// A should be a struct type.
func Bind[A any](defaults A) (*Binder[A], error) {
	values := detach(defaults)
	b := &Binder[A]{Values: &values}

	rv := reflect.ValueOf(b.Values).Elem()
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: args should be struct, but %s", ErrUnsupportedType, rv.Type())
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}

		jsonName, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		tagFlag, hasFlagTag := sf.Tag.Lookup("flag")
		if tagFlag == "-" || (!hasFlagTag && jsonName == "-") {
			continue
		}

		attrs := strings.Split(tagFlag, ",")
		f := Flag{Name: attrs[0], Field: sf.Name}
		for _, a := range attrs[1:] {
			name, value, _ := strings.Cut(a, "=")
			switch name {
			case "short":
				f.ShortName = value
			case "help":
				f.Help = value
			case "metavar":
				f.MetaVar = value
			case "required":
				f.Required = true
			}
		}
		if f.Name == "" {
			f.Name = jsonName
		}
		if f.Name == "" || f.Name == "-" {
			f.Name = snakeCase(sf.Name)
		}

		fv := rv.Field(i)
		if fv.Kind() == reflect.Pointer {
			if _, ok := fv.Interface().(flag.Value); !ok {
				return nil, fmt.Errorf("%w: field %s has type %s", ErrUnsupportedType, sf.Name, sf.Type)
			}
			// flags write through the pointer. detach has copied non-nil ones.
			if fv.IsNil() {
				fv.Set(reflect.New(sf.Type.Elem()))
			}
			f.ptr = fv
		} else {
			f.ptr = fv.Addr()
		}
		if _, err := f.value(); err != nil {
			return nil, err
		}

		b.Flags = append(b.Flags, f)
	}

	return b, nil
}

// FlagSet returns a new FlagSet with all flags of b.
//
// Errors and usage are written to out.
func (b *Binder[A]) FlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	for _, f := range b.Flags {
		// types are checked in Bind.
		_ = f.SetFlag(fs)
	}
	fs.Usage = func() { b.WriteUsage(out, name) }
	return fs
}

// WriteUsage writes usage of flags.
func (b *Binder[A]) WriteUsage(w io.Writer, name string) {
	fmt.Fprintf(w, "Usage: %s", name)
	for _, f := range b.Flags {
		if f.Required {
			fmt.Fprintf(w, " %s", f)
		}
	}
	if slices.ContainsFunc(b.Flags, func(f Flag) bool { return !f.Required }) {
		fmt.Fprint(w, " [flags...]")
	}
	fmt.Fprintln(w)
	if len(b.Flags) == 0 {
		return
	}

	fmt.Fprintln(w, "\nFlags:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range b.Flags {
		help := f.Help
		if f.Required {
			help = strings.TrimSpace("(required) " + help)
		}
		fmt.Fprintf(tw, "  %s\t%s\n", f, help)
	}
	tw.Flush()
}

// Usage returns usage of flags for args type of defaults.
func Usage[A any](name string, defaults A) (string, error) {
	b, err := Bind(defaults)
	if err != nil {
		return "", err
	}
	buf := new(bytes.Buffer)
	b.WriteUsage(buf, name)
	return buf.String(), nil
}

// Parse parses command line flags onto a copy of defaults.
//
// A leading "--" in argv is dropped. Positional arguments are not allowed.
//
// When -h or --help is given, it writes usage to out and returns ErrHelp.
func Parse[A any](name string, defaults A, argv []string, out io.Writer) (A, error) {
	b, err := Bind(defaults)
	if err != nil {
		return defaults, err
	}
	if 0 < len(argv) && argv[0] == "--" {
		argv = argv[1:]
	}

	fs := b.FlagSet(name, out)
	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return defaults, ErrHelp
		}
		return defaults, fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}
	if rest := fs.Args(); 0 < len(rest) {
		return defaults, fmt.Errorf("%w: unexpected arguments: %s", ErrInvalidArgs, strings.Join(rest, " "))
	}

	given := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { given[f.Name] = struct{}{} })
	missing := []string{}
	for _, f := range b.Flags {
		if !f.Required {
			continue
		}
		_, long := given[f.Name]
		_, short := given[f.ShortName]
		if !long && !(f.ShortName != "" && short) {
			missing = append(missing, "--"+f.Name)
		}
	}
	if 0 < len(missing) {
		return defaults, fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}

	return validate(*b.Values)
}

// FromMap decodes a dictionary, from config files or args.json, onto a copy of defaults.
//
// Keys are json names of fields. Unknown keys are error.
// domain.NodeNameKey and domain.NodePackageKey are ignored.
func FromMap[A any](defaults A, m map[string]any) (A, error) {
	clean := make(map[string]any, len(m))
	for k, v := range m {
		if k == domain.NodeNameKey || k == domain.NodePackageKey {
			continue
		}
		clean[k] = v
	}

	buf, err := json.Marshal(clean)
	if err != nil {
		return defaults, fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}

	a := detach(defaults)
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return defaults, fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}
	return validate(a)
}

// FromJSON decodes JSON object onto a copy of defaults. See FromMap.
func FromJSON[A any](defaults A, b []byte) (A, error) {
	m := map[string]any{}
	if err := json.Unmarshal(b, &m); err != nil {
		return defaults, fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}
	return FromMap(defaults, m)
}

// Load reads a YAML or JSON file and decodes it onto a copy of defaults. See FromMap.
func Load[A any](path string, defaults A) (A, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return defaults, err
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(buf, &m); err != nil {
		return defaults, fmt.Errorf("%w: %s: %w", ErrInvalidArgs, path, err)
	}
	return FromMap(defaults, m)
}

// AsMap converts args into a dictionary keyed by json names.
func AsMap[A any](a A) (map[string]any, error) {
	buf, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Save writes args as JSON with node identity.
func Save[A any](path string, a A, info Info) error {
	m, err := AsMap(a)
	if err != nil {
		return err
	}
	m[domain.NodeNameKey] = info.Node
	m[domain.NodePackageKey] = info.Package

	buf, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(buf, '\n'), 0o644)
}

// ReadInfo reads node identity from a file written by Save.
func ReadInfo(path string) (Info, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(buf, &m); err != nil {
		return Info{}, fmt.Errorf("%w: %s: %w", ErrInvalidArgs, path, err)
	}
	info := Info{}
	info.Node, _ = m[domain.NodeNameKey].(string)
	info.Package, _ = m[domain.NodePackageKey].(string)
	return info, nil
}

// Validate calls a.Validate() when args type implements Validator.
func Validate[A any](a A) error {
	var v any = a
	if _, ok := v.(Validator); !ok {
		v = &a
	}
	if vd, ok := v.(Validator); ok {
		if err := vd.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArgs, err)
		}
	}
	return nil
}

// detach returns a copy of a, whose slice, map and pointer fields do not share memory with a.
//
// Decoding JSON and flags write into existing slices, maps and pointees.
func detach[A any](a A) A {
	rv := reflect.ValueOf(&a).Elem()
	if rv.Kind() != reflect.Struct {
		return a
	}
	for i := 0; i < rv.NumField(); i++ {
		fv := rv.Field(i)
		if !fv.CanSet() {
			continue
		}
		switch fv.Kind() {
		case reflect.Slice:
			if fv.IsNil() {
				continue
			}
			fv.Set(reflect.AppendSlice(reflect.MakeSlice(fv.Type(), 0, fv.Len()), fv))
		case reflect.Map:
			if fv.IsNil() {
				continue
			}
			m := reflect.MakeMapWithSize(fv.Type(), fv.Len())
			iter := fv.MapRange()
			for iter.Next() {
				m.SetMapIndex(iter.Key(), iter.Value())
			}
			fv.Set(m)
		case reflect.Pointer:
			if fv.IsNil() {
				continue
			}
			nv := reflect.New(fv.Type().Elem())
			nv.Elem().Set(fv.Elem())
			fv.Set(nv)
		}
	}
	return a
}

func validate[A any](a A) (A, error) {
	return a, Validate(a)
}
