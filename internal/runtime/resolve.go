package runtime

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/probeflow/probeflow/internal/core"
)

// Placeholder syntaxes, substituted left-to-right in this order per text:
// ${NAME} environment variables, {{step.var}} extracted step variables,
// #{name} or #{name:default} manual inputs.
var (
	reEnvVar    = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)
	reStepVar   = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
	reManual    = regexp.MustCompile(`#\{([^{}:]+)(?::([^{}]*))?\}`)
	reFileRef   = regexp.MustCompile(`^\$\{FILE:([^{}]+)\}$`)
	reKafkaKey  = regexp.MustCompile(`(?m)^\s*key\s*=.*$\n?`)
	isoTimeUTC  = func(now time.Time) string { return now.UTC().Format(time.RFC3339) }
	freshUUIDv4 = func() string { return uuid.NewString() }
)

// Resolver substitutes placeholders against one run's namespaces. It is
// a pure function of its inputs; the warning sink receives a record for
// every unresolved {{...}} reference.
type Resolver struct {
	// Env supplies ${NAME} variables. May be nil.
	Env *core.Environment
	// Vars is the extracted-variable namespace ("<step>.<name>" keys).
	Vars map[string]string
	// Inputs is the per-run manual-input cache.
	Inputs map[string]string
	// Warn receives a diagnostic per unresolved step variable. May be nil.
	Warn func(string)
	// Now overrides the clock for ISO_TIMESTAMP expansion. Defaults to
	// time.Now.
	Now func() time.Time
}

// Resolve substitutes all three placeholder syntaxes in order. Unknown
// ${NAME} stays literal silently; unknown {{step.var}} stays literal and
// emits a warning; unknown #{name} resolves to its default or empty.
func (r Resolver) Resolve(text string) string {
	if text == "" {
		return ""
	}
	text = r.resolveEnv(text)
	text = r.resolveStepVars(text)
	text = r.resolveManual(text)
	return text
}

// ResolveNoManual substitutes env and step variables only, leaving
// #{...} placeholders intact. Used to scan texts for pending manual
// inputs before prompting.
func (r Resolver) ResolveNoManual(text string) string {
	if text == "" {
		return ""
	}
	text = r.resolveEnv(text)
	return r.resolveStepVars(text)
}

func (r Resolver) resolveEnv(text string) string {
	if r.Env == nil || !strings.Contains(text, "${") {
		return text
	}
	return reEnvVar.ReplaceAllStringFunc(text, func(match string) string {
		name := match[2 : len(match)-1]
		v, ok := r.Env.Variable(name)
		if !ok {
			return match
		}
		return r.expandValue(v.ValueType, v.Value)
	})
}

func (r Resolver) resolveStepVars(text string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return reStepVar.ReplaceAllStringFunc(text, func(match string) string {
		key := strings.TrimSpace(match[2 : len(match)-2])
		if val, ok := r.Vars[key]; ok {
			return val
		}
		if r.Warn != nil {
			r.Warn(fmt.Sprintf("Unresolved variable: {{%s}}", key))
		}
		return match
	})
}

func (r Resolver) resolveManual(text string) string {
	if !strings.Contains(text, "#{") {
		return text
	}
	return reManual.ReplaceAllStringFunc(text, func(match string) string {
		groups := reManual.FindStringSubmatch(match)
		name := groups[1]
		if val, ok := r.Inputs[name]; ok {
			return val
		}
		return groups[2]
	})
}

// expandValue produces a header or variable value according to its
// declared type. UUID draws a fresh v4 per expansion.
func (r Resolver) expandValue(vt core.ValueType, value string) string {
	switch vt {
	case core.ValueUUID:
		return freshUUIDv4()
	case core.ValueISOTimestamp:
		return isoTimeUTC(r.now())
	default:
		return value
	}
}

func (r Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// ResolveHeaderValue produces a default header's value according to its
// declared type. VARIABLE headers name an environment variable, falling
// back to the extracted-variable namespace and finally to the literal
// text.
func (r Resolver) ResolveHeaderValue(h core.DefaultHeader) string {
	switch h.ValueType {
	case core.ValueVariable:
		if r.Env != nil {
			if v, ok := r.Env.Variable(h.Value); ok {
				return r.expandValue(v.ValueType, v.Value)
			}
		}
		if val, ok := r.Vars[h.Value]; ok {
			return val
		}
		return h.Value
	case core.ValueStatic:
		return r.Resolve(h.Value)
	default:
		return r.expandValue(h.ValueType, h.Value)
	}
}

// ManualInputNames returns every #{name} occurrence in the text along
// with its literal default, in order of first appearance.
func ManualInputNames(text string) []core.ManualInputField {
	var fields []core.ManualInputField
	for _, groups := range reManual.FindAllStringSubmatch(text, -1) {
		fields = append(fields, core.ManualInputField{
			Name:         groups[1],
			DefaultValue: groups[2],
		})
	}
	return fields
}

// ManualInputHasDefault reports whether the #{name} occurrence carries a
// literal default (the "#{name:default}" form).
func ManualInputHasDefault(text, name string) bool {
	for _, groups := range reManual.FindAllStringSubmatch(text, -1) {
		if groups[1] == name && strings.Contains(groups[0], ":") {
			return true
		}
	}
	return false
}

// FileReference extracts the file key from a "${FILE:key}" form-data
// value, if the whole value is one reference.
func FileReference(value string) (string, bool) {
	groups := reFileRef.FindStringSubmatch(value)
	if groups == nil {
		return "", false
	}
	return groups[1], true
}

// StripKafkaKeyFilter removes "key=..." lines from a Kafka listener
// query. Applied when a pre-listen query still references the step's own
// not-yet-available response, so only topic-level filtering remains.
func StripKafkaKeyFilter(query string) string {
	return reKafkaKey.ReplaceAllString(query, "")
}

// HasUnresolvedStepVars reports whether the text still contains a
// {{...}} reference after resolution.
func HasUnresolvedStepVars(text string) bool {
	return reStepVar.MatchString(text)
}
