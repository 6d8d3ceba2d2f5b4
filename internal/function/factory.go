package function

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

var paramNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Factory builds function items from a shared library of parameter
// definitions.
type Factory struct {
	params    map[string]model.FunctionParameter
	tags      []string
	tokenizer model.Tokenizer
}

// ParamDefinition is a library entry. The name comes from its key.
type ParamDefinition struct {
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Enum        []any  `yaml:"enum,omitempty"`
}

// FactoryFile is the YAML layout read by LoadFactory.
type FactoryFile struct {
	Params map[string]ParamDefinition `yaml:"params"`
	Tags   []string                   `yaml:"tags"`
}

// NewFactory validates the parameter library and creates a Factory. Tags are
// added to every item it builds.
func NewFactory(params map[string]ParamDefinition, tags []string, tok model.Tokenizer) (*Factory, error) {
	library := make(map[string]model.FunctionParameter, len(params))
	for name, def := range params {
		p := model.FunctionParameter{Name: name, Type: def.Type, Description: def.Description, Enum: def.Enum}
		if err := validateParam(p); err != nil {
			return nil, err
		}
		library[name] = p
	}
	return &Factory{
		params:    library,
		tags:      append([]string(nil), tags...),
		tokenizer: tok,
	}, nil
}

// LoadFactory reads a FactoryFile from r.
func LoadFactory(r io.Reader, tok model.Tokenizer) (*Factory, error) {
	var file FactoryFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode parameter library: %w", err)
	}
	return NewFactory(file.Params, file.Tags, tok)
}

// LoadFactoryFile reads a FactoryFile from path.
func LoadFactoryFile(path string, tok model.Tokenizer) (*Factory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parameter library: %w", err)
	}
	defer f.Close()
	return LoadFactory(f, tok)
}

func validateParam(p model.FunctionParameter) error {
	if !paramNamePattern.MatchString(p.Name) {
		return model.Validationf("invalid param name %q", p.Name)
	}
	if p.Type == "" {
		return model.Validationf("param %s has no type", p.Name)
	}
	return nil
}

// ItemSpec describes an item built from the library.
type ItemSpec struct {
	Name        string
	Description string

	// Params names library parameters, in order.
	Params []string

	// CustomParams are appended after library parameters.
	CustomParams []model.FunctionParameter

	Required []string
	AutoCall bool
	Tags     []string

	// MethodRef defaults to Name.
	MethodRef string
}

// CreateFunctionItem resolves library parameters and builds the item.
func (f *Factory) CreateFunctionItem(spec ItemSpec, method model.Method) (model.FunctionItem, error) {
	params := make([]model.FunctionParameter, 0, len(spec.Params)+len(spec.CustomParams))
	var unknown []string
	for _, name := range spec.Params {
		p, ok := f.params[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		params = append(params, p)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return model.FunctionItem{}, model.Validationf("invalid param detected: %v", unknown)
	}
	params = append(params, spec.CustomParams...)

	tags := append(append([]string(nil), f.tags...), spec.Tags...)

	return model.NewFunctionItem(model.FunctionSpec{
		Name:        spec.Name,
		Description: spec.Description,
		Params:      params,
		Required:    spec.Required,
		AutoCall:    spec.AutoCall,
		Tags:        tags,
		MethodRef:   spec.MethodRef,
	}, method, f.tokenizer)
}

// Params returns the library parameter names, sorted.
func (f *Factory) Params() []string {
	names := make([]string, 0, len(f.params))
	for name := range f.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
