package protocol

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/flowlab-core/internal/component"
)

// Step is one scheduled parameter change as written in a protocol file.
type Step struct {
	// Time is the offset from the start of the run, in seconds.
	Time   float64          `yaml:"time"`
	Params component.Params `yaml:"params"`
}

// Section is the list of steps for one device, in file order.
type Section struct {
	Component string
	Steps     []Step
}

// Definition is a parsed, not yet compiled, protocol.
type Definition struct {
	Name     string
	Sections []Section
}

// rawFile keeps components as a node so device order survives decoding.
type rawFile struct {
	Name       string    `yaml:"name"`
	Components yaml.Node `yaml:"components"`
}

// Lookup resolves device names. *component.Registry satisfies it.
type Lookup interface {
	Get(name string) (component.Component, error)
}

// Load reads and parses a protocol file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path) //nolint:gosec // protocol path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("reading protocol file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a protocol document.
func Parse(data []byte) (*Definition, error) {
	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	def := &Definition{Name: raw.Name}
	node := &raw.Components
	if node.Kind == 0 {
		return def, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: components must be a mapping of device to steps", ErrParse, node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var steps []Step
		if err := value.Decode(&steps); err != nil {
			return nil, fmt.Errorf("%w: component %s: %w", ErrParse, key.Value, err)
		}
		def.Sections = append(def.Sections, Section{Component: key.Value, Steps: steps})
	}
	return def, nil
}

// Compile binds a definition to components and validates every step.
// All problems are reported together.
func Compile(def *Definition, lookup Lookup) (*Compiled, error) {
	var errs []error

	if def.Name == "" {
		errs = append(errs, ErrNameRequired)
	}

	compiled := &Compiled{Name: def.Name}
	seen := make(map[string]bool, len(def.Sections))

	for _, sec := range def.Sections {
		if seen[sec.Component] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateComponent, sec.Component))
			continue
		}
		seen[sec.Component] = true

		comp, err := lookup.Get(sec.Component)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownComponent, sec.Component))
			continue
		}

		procs, err := compileSteps(comp, sec.Steps)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		compiled.Entries = append(compiled.Entries, Entry{Component: comp, Procedures: procs})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return compiled, nil
}

// maxStepSeconds is the largest offset a time.Duration can hold.
var maxStepSeconds = float64(math.MaxInt64) / float64(time.Second)

func compileSteps(comp component.Component, steps []Step) ([]Procedure, error) {
	validator, _ := comp.(component.Validator)
	procs := make([]Procedure, 0, len(steps))

	for i, s := range steps {
		if math.IsNaN(s.Time) || math.IsInf(s.Time, 0) {
			return nil, fmt.Errorf("%w: %s step %d: time must be a finite number", ErrParse, comp.Name(), i)
		}
		if s.Time >= maxStepSeconds {
			return nil, fmt.Errorf("%w: %s step %d: time %g exceeds %g seconds", ErrParse, comp.Name(), i, s.Time, maxStepSeconds)
		}
		params := s.Params.Clone()
		if validator != nil {
			if err := validator.ValidateParams(params); err != nil {
				return nil, fmt.Errorf("%w: %s step %d: %w", ErrInvalidParams, comp.Name(), i, err)
			}
		}
		procs = append(procs, Procedure{
			Time:   time.Duration(s.Time * float64(time.Second)),
			Params: params,
		})
	}

	if err := checkOrder(comp.Name(), procs); err != nil {
		return nil, err
	}
	return procs, nil
}
