package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Najia-afk/aria-core/pkg/errs"
)

// SkillConfig is one entry of the §6 tools descriptor: a skill's enabled
// flag plus its opaque provider-specific configuration.
type SkillConfig struct {
	Enabled      bool   `yaml:"enabled"`
	APIURL       string `yaml:"api_url,omitempty"`
	APIKey       string `yaml:"api_key,omitempty"`
	TimeoutSec   int    `yaml:"timeout,omitempty"`
	MaxPerMinute int    `yaml:"max_per_minute,omitempty"`

	// Extra carries any provider-specific keys the struct above doesn't
	// name, preserved verbatim (§4.1 "unknown keys are preserved and
	// forwarded").
	Extra map[string]string `yaml:"-"`

	// resolved marks whether ResolveEnvRefs has already run over this
	// entry, so a skill descriptor is never re-resolved (and re-logged)
	// on a second hot-reload pass that didn't touch it.
	resolved bool
	// missingEnvRef names the env var an "env:" reference pointed at that
	// was not set at startup, if any (§6: "missing values mark the skill
	// unavailable").
	missingEnvRef string
}

// ToolsDescriptor is the full §6 tools descriptor document: every skill
// name the deployment knows about, enabled or not.
type ToolsDescriptor struct {
	Skills map[string]*SkillConfig `yaml:"-"`
}

// UnmarshalYAML decodes the tools descriptor's top-level mapping (skill
// name -> SkillConfig), capturing unknown provider-specific keys into
// Extra rather than rejecting them, since §4.1 requires unknown keys be
// preserved and forwarded, not just tolerated at the top level.
func (t *ToolsDescriptor) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("tools descriptor must be a mapping of skill name to config")
	}
	t.Skills = make(map[string]*SkillConfig, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var raw map[string]any
		if err := node.Content[i+1].Decode(&raw); err != nil {
			return fmt.Errorf("decode skill %q: %w", name, err)
		}
		sc := &SkillConfig{Extra: make(map[string]string)}
		for k, v := range raw {
			s := fmt.Sprint(v)
			switch k {
			case "enabled":
				sc.Enabled, _ = v.(bool)
			case "api_url":
				sc.APIURL = s
			case "api_key":
				sc.APIKey = s
			case "timeout":
				fmt.Sscanf(s, "%d", &sc.TimeoutSec)
			case "max_per_minute":
				fmt.Sscanf(s, "%d", &sc.MaxPerMinute)
			default:
				sc.Extra[k] = s
			}
		}
		t.Skills[name] = sc
	}
	return nil
}

// LoadToolsDescriptor reads and parses the §6 tools descriptor file and
// resolves every "env:NAME" reference against the process environment.
func LoadToolsDescriptor(path string) (*ToolsDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Configuration("read tools descriptor %q: %v", path, err)
	}
	var td ToolsDescriptor
	if err := yaml.Unmarshal(data, &td); err != nil {
		return nil, errs.Configuration("parse tools descriptor %q: %v", path, err)
	}
	ResolveEnvRefs(&td)
	return &td, nil
}

const envRefPrefix = "env:"

// ResolveEnvRefs resolves every "env:NAME" string value in the descriptor
// against os.Getenv, once, in place. A skill whose api_key or api_url
// references a variable that isn't set is not fatal here: the skill's
// Unavailable method reports the missing variable name. The registry does
// not read it, so the skill's registry status is not changed by it.
func ResolveEnvRefs(td *ToolsDescriptor) {
	for _, sc := range td.Skills {
		if sc.resolved {
			continue
		}
		sc.APIKey, sc.missingEnvRef = resolveOne(sc.APIKey, sc.missingEnvRef)
		sc.APIURL, sc.missingEnvRef = resolveOne(sc.APIURL, sc.missingEnvRef)
		for k, v := range sc.Extra {
			resolvedVal, missing := resolveOne(v, sc.missingEnvRef)
			sc.Extra[k] = resolvedVal
			if missing != "" {
				sc.missingEnvRef = missing
			}
		}
		sc.resolved = true
	}
}

func resolveOne(val, missingSoFar string) (resolved, missingEnvRef string) {
	missingEnvRef = missingSoFar
	if !strings.HasPrefix(val, envRefPrefix) {
		return val, missingEnvRef
	}
	name := strings.TrimPrefix(val, envRefPrefix)
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", name
	}
	return v, missingEnvRef
}

// Unavailable reports whether this skill's config could not be fully
// resolved (a referenced env var is missing) — it registers, if at all,
// as StatusUnavailable rather than StatusAvailable.
func (s *SkillConfig) Unavailable() (string, bool) {
	if s.missingEnvRef != "" {
		return s.missingEnvRef, true
	}
	return "", false
}
