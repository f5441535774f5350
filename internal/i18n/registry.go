// Package i18n loads the plugin's language files and resolves translation
// keys with a fallback language.
package i18n

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Registry holds translations by language and namespace.
type Registry struct {
	mu       sync.RWMutex
	fallback string
	data     map[string]map[string]map[string]string // lang -> namespace -> key -> text
}

func NewRegistry(fallback string) *Registry {
	return &Registry{
		fallback: strings.TrimSpace(fallback),
		data:     map[string]map[string]map[string]string{},
	}
}

// AddTranslation registers (or merges into) lang/namespace.
func (r *Registry) AddTranslation(lang, namespace string, entries map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nss := r.data[lang]
	if nss == nil {
		nss = map[string]map[string]string{}
		r.data[lang] = nss
	}
	m := nss[namespace]
	if m == nil {
		m = make(map[string]string, len(entries))
		nss[namespace] = m
	}
	for k, v := range entries {
		m[k] = v
	}
}

// Translate resolves ref ("namespace:key") in lang, then in the fallback
// language. Unknown refs come back unchanged. %1, %2, ... are replaced by
// args in order.
func (r *Registry) Translate(lang, ref string, args ...string) string {
	ns, key, ok := strings.Cut(ref, ":")
	if !ok {
		return ref
	}
	text, found := r.lookup(lang, ns, key)
	if !found && lang != r.fallback {
		text, found = r.lookup(r.fallback, ns, key)
	}
	if !found {
		return ref
	}
	// Replace from the highest index down so %1 does not eat %10.
	for i := len(args); i >= 1; i-- {
		text = strings.ReplaceAll(text, "%"+strconv.Itoa(i), args[i-1])
	}
	return text
}

func (r *Registry) lookup(lang, ns, key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[lang][ns][key]
	return v, ok
}

// Languages lists the registered languages, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.data))
	for l := range r.data {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Namespaces lists the namespaces registered for lang, sorted.
func (r *Registry) Namespaces(lang string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.data[lang]))
	for ns := range r.data[lang] {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}
