package prompts

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// embeds all .yaml files in the templates folder into Go program at compile time
//
//go:embed templates/*.yaml
var templateFS embed.FS

// Prompt kinds.
const (
	KindQuestion = "question"
	KindFeedback = "feedback"
)

// VariantDefault is used when no more specific variant exists.
const VariantDefault = "default"

type PromptManager struct {
	prompts map[string]map[string]string // kind -> variant -> complete prompt
}

// loaded prompt template
type PromptTemplate struct {
	BasePrompt string            `yaml:"base_prompt"`
	Variants   map[string]string `yaml:"variants"`
}

// creates a new prompt manager and loads templates
func NewPromptManager() (*PromptManager, error) {
	pm := &PromptManager{
		prompts: make(map[string]map[string]string),
	}

	if err := pm.loadPrompts(); err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	return pm, nil
}

// BuildPrompt renders the prompt for kind and variant, falling back to
// the default variant. Placeholders look like {{.Name}}; unknown
// placeholders are left as they are.
func (pm *PromptManager) BuildPrompt(kind, variant string, vars map[string]string) (string, error) {
	kindPrompts, exists := pm.prompts[kind]
	if !exists {
		return "", fmt.Errorf("template not found for kind: %s", kind)
	}

	promptTemplate, exists := kindPrompts[variant]
	if !exists {
		promptTemplate, exists = kindPrompts[VariantDefault]
	}
	if !exists {
		return "", fmt.Errorf("variant '%s' not found for kind '%s'", variant, kind)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := promptTemplate
	for _, k := range keys {
		result = strings.ReplaceAll(result, "{{."+k+"}}", vars[k])
	}
	return result, nil
}

// Variants lists the variants loaded for kind.
func (pm *PromptManager) Variants(kind string) []string {
	var out []string
	for v := range pm.prompts[kind] {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// loadPrompts loads all YAML prompt files from the embedded filesystem
func (pm *PromptManager) loadPrompts() error {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return fmt.Errorf("failed to read templates directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		data, err := templateFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read template file %s: %w", entry.Name(), err)
		}

		var promptTemplate PromptTemplate
		if err := yaml.Unmarshal(data, &promptTemplate); err != nil {
			return fmt.Errorf("failed to parse template file %s: %w", entry.Name(), err)
		}

		name := strings.TrimSuffix(entry.Name(), ".yaml")
		pm.prompts[name] = make(map[string]string)

		for variant, body := range promptTemplate.Variants {
			var fullPrompt strings.Builder
			if promptTemplate.BasePrompt != "" {
				fullPrompt.WriteString(promptTemplate.BasePrompt)
				fullPrompt.WriteString("\n\n")
			}
			fullPrompt.WriteString(body)
			pm.prompts[name][variant] = fullPrompt.String()
		}
	}

	return nil
}
