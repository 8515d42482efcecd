// Package prompts renders the model prompts used by the fetch and analysis
// stages. Each prompt family is an embedded TOML file holding a system
// prompt and one text/template body per prompt mode.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/pelletier/go-toml/v2"

	"marketintel/internal/config"
)

//go:embed *.toml
var files embed.FS

// Family names.
const (
	FamilyURL         = "url"
	FamilyRelevance   = "relevance"
	FamilyInsight     = "insight"
	FamilyImplication = "implication"
)

type family struct {
	System      string `toml:"system"`
	Development string `toml:"development"`
	Production  string `toml:"production"`

	dev  *template.Template
	prod *template.Template
}

var (
	mu       sync.Mutex
	families = map[string]*family{}
)

// URLData feeds the per-URL prompt carried to the fetch stage.
type URLData struct {
	URL      string
	Title    string
	Snippet  string
	Keywords []string
	Focus    string
}

// AnalysisData feeds the relevance, insight and implication prompts.
type AnalysisData struct {
	URL         string
	Title       string
	Source      string
	Keywords    []string
	UserPrompt  string
	Focus       string
	Summary     string
	PublishDate string
}

// Rendered is a system prompt plus the user prompt for one call.
type Rendered struct {
	System string
	Prompt string
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"orDefault": func(fallback, value string) string {
		if strings.TrimSpace(value) == "" {
			return fallback
		}
		return value
	},
}

func load(name string) (*family, error) {
	mu.Lock()
	defer mu.Unlock()
	if f, ok := families[name]; ok {
		return f, nil
	}
	data, err := files.ReadFile(name + ".toml")
	if err != nil {
		return nil, fmt.Errorf("unknown prompt family %q: %w", name, err)
	}
	var f family
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompt family %q: %w", name, err)
	}
	if f.dev, err = template.New(name + ".development").Funcs(funcs).Parse(f.Development); err != nil {
		return nil, fmt.Errorf("parse %s development template: %w", name, err)
	}
	if f.prod, err = template.New(name + ".production").Funcs(funcs).Parse(f.Production); err != nil {
		return nil, fmt.Errorf("parse %s production template: %w", name, err)
	}
	families[name] = &f
	return &f, nil
}

// Render executes the named family for mode. Unknown modes render the
// development body, which is the shorter of the two.
func Render(name, mode string, data any) (Rendered, error) {
	f, err := load(name)
	if err != nil {
		return Rendered{}, err
	}
	tmpl := f.dev
	if mode == config.PromptModeProduction {
		tmpl = f.prod
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Rendered{}, fmt.Errorf("render %s prompt: %w", name, err)
	}
	return Rendered{System: strings.TrimSpace(f.System), Prompt: strings.TrimSpace(buf.String())}, nil
}
