package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nipreps/dmotion/pkg/dwi"
)

// constructor builds a concrete model from a gradient table and options.
type constructor func(gtab *dwi.GradientTable, opts ...Option) (Model, error)

// registry maps canonical lower-case model names to constructors. Aliases
// point at the same constructor; adding a model means adding entries here,
// callers never change.
var registry = map[string]constructor{
	"trivial": func(gtab *dwi.GradientTable, opts ...Option) (Model, error) { return NewTrivial(gtab, opts...) },
	"b0":      func(gtab *dwi.GradientTable, opts ...Option) (Model, error) { return NewTrivial(gtab, opts...) },
	"average": func(gtab *dwi.GradientTable, opts ...Option) (Model, error) { return NewAverage(gtab, opts...) },
	"avg":     func(gtab *dwi.GradientTable, opts ...Option) (Model, error) { return NewAverage(gtab, opts...) },
	"avgdwi":  func(gtab *dwi.GradientTable, opts ...Option) (Model, error) { return NewAverage(gtab, opts...) },
	"dti":     func(gtab *dwi.GradientTable, opts ...Option) (Model, error) { return NewDTI(gtab, opts...) },
	"dki":     func(gtab *dwi.GradientTable, opts ...Option) (Model, error) { return NewDKI(gtab, opts...) },
}

// New selects and constructs a model by name. Names are case-insensitive;
// recognized names are "trivial"/"b0", "average"/"avg"/"avgdwi", "dti" and
// "dki". Unrecognized names fail with ErrUnknownModel; no default is ever
// substituted.
func New(gtab *dwi.GradientTable, name string, opts ...Option) (Model, error) {
	ctor, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownModel, name, strings.Join(Names(), ", "))
	}
	return ctor(gtab, opts...)
}

// Names returns the recognized model names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
