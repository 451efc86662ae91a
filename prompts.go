package reconcile

import (
	"embed"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tyler-sommer/stick"
)

// Role tags of the bundled instructions.
const (
	RoleExtract      = "extract"
	RoleConsolidator = "consolidator"
	RoleSpecializer  = "specializer"
	RoleCritic       = "critic"
	RoleDiscovery    = "discovery"
	RoleAnalyst      = "analyst"
	RoleValidator    = "validator"
)

//go:embed prompts/*.twig
var defaultPromptFS embed.FS

// PromptProvider should return the instruction text for the given tag.
type PromptProvider interface {
	GetPrompt(tag string, version int) (string, error)
}

// ContextualPromptProvider renders instructions with per-request variables.
type ContextualPromptProvider interface {
	PromptProvider
	GetPromptWithContext(tag string, version int, vars map[string]any) (string, error)
}

// → StickPromptProvider is fs-agnostic
type StickPromptProvider struct {
	env       *stick.Env
	templates map[string]string
	vars      map[string]any
}

// → Option pattern keeps the constructor flexible
type PromptOption func(*StickPromptProvider) error

// WithFS loads every *.twig file found under dir in the supplied FS.
func WithFS[F fs.FS](fsys F, dir string) PromptOption {
	return func(p *StickPromptProvider) error {
		return fs.WalkDir(fsys, dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".twig") {
				return nil
			}
			content, readErr := fs.ReadFile(fsys, path)
			if readErr != nil {
				return eris.Wrapf(readErr, "read %s", path)
			}
			tag := strings.TrimSuffix(filepath.Base(path), ".twig")
			p.templates[tag] = string(content)
			return nil
		})
	}
}

// WithTemplates lets you inject an in-memory map.
func WithTemplates(m map[string]string) PromptOption {
	return func(p *StickPromptProvider) error {
		for k, v := range m {
			p.templates[k] = v
		}
		return nil
	}
}

// WithVar adds a variable that will be available in all templates
func WithVar(key string, value any) PromptOption {
	return func(p *StickPromptProvider) error {
		p.vars[key] = value
		return nil
	}
}

// NewStickPromptProvider builds a provider from any combination of options.
func NewStickPromptProvider(opts ...PromptOption) (*StickPromptProvider, error) {
	p := &StickPromptProvider{
		env:       stick.New(nil),
		templates: make(map[string]string),
		vars:      make(map[string]any),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// DefaultPrompts returns the bundled role instructions. Extra options can add
// or override templates.
func DefaultPrompts(opts ...PromptOption) (*StickPromptProvider, error) {
	return NewStickPromptProvider(append([]PromptOption{WithFS(defaultPromptFS, "prompts")}, opts...)...)
}

// AddTemplate updates or inserts one template.
func (p *StickPromptProvider) AddTemplate(tag, tpl string) { p.templates[tag] = tpl }

// GetPrompt renders the template for the given tag.
func (p *StickPromptProvider) GetPrompt(tag string, version int) (string, error) {
	return p.GetPromptWithContext(tag, version, nil)
}

// GetPromptWithContext renders the template with additional variables.
// Request variables win over provider-wide ones.
func (p *StickPromptProvider) GetPromptWithContext(tag string, version int, vars map[string]any) (string, error) {
	tpl, ok := p.templates[tag]
	if !ok {
		return "", eris.Errorf("template %q not found", tag)
	}

	templateCtx := make(map[string]stick.Value, len(p.vars)+len(vars)+2)
	templateCtx["version"] = version
	templateCtx["tag"] = tag
	for k, v := range p.vars {
		templateCtx[k] = v
	}
	for k, v := range vars {
		templateCtx[k] = v
	}

	var out strings.Builder
	if err := p.env.Execute(tpl, &out, templateCtx); err != nil {
		return "", eris.Wrapf(err, "execute %q", tag)
	}
	return strings.TrimSpace(out.String()), nil
}

// Tags lists the loaded template tags.
func (p *StickPromptProvider) Tags() []string {
	tags := make([]string, 0, len(p.templates))
	for t := range p.templates {
		tags = append(tags, t)
	}
	return tags
}

// → SimplePromptProvider is a plain tag → text map
type SimplePromptProvider map[string]string

func (s SimplePromptProvider) GetPrompt(tag string, version int) (string, error) {
	if tpl, ok := s[tag]; ok {
		return tpl, nil
	}
	return "", eris.Errorf("prompt %q not found", tag)
}

// resolveInstructions turns a request's instruction tag into text. Without a
// provider the tag is used verbatim.
func resolveInstructions(p PromptProvider, req ExtractionRequest) (string, error) {
	if p == nil {
		return req.Instructions, nil
	}
	if cp, ok := p.(ContextualPromptProvider); ok {
		return cp.GetPromptWithContext(req.Instructions, 1, map[string]any{
			"input":  req.Input,
			"round":  req.Round,
			"record": req.RecordIndex,
		})
	}
	return p.GetPrompt(req.Instructions, 1)
}
