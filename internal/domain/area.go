package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics and drops separators so that
// "EN_ATENCION", "En atención" and "enAtencion" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	var b strings.Builder
	b.Grow(len(out))
	for _, r := range strings.ToLower(out) {
		switch r {
		case ' ', '_', '-', '.', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Area is a canonical responsible area with the names the backend may use for it.
type Area struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// AreaCatalog resolves area names to canonical ids by exact folded match.
type AreaCatalog struct {
	areas []Area
	index map[string]string
}

// NewAreaCatalog indexes the id, name and aliases of every area.
func NewAreaCatalog(areas []Area) *AreaCatalog {
	c := &AreaCatalog{areas: areas, index: make(map[string]string)}
	for _, a := range areas {
		c.index[Fold(a.ID)] = a.ID
		if a.Name != "" {
			c.index[Fold(a.Name)] = a.ID
		}
		for _, alias := range a.Aliases {
			c.index[Fold(alias)] = a.ID
		}
	}
	return c
}

// DefaultAreaCatalog returns the built-in campus areas.
func DefaultAreaCatalog() *AreaCatalog {
	return NewAreaCatalog([]Area{
		{ID: "TI", Name: "Tecnologías de la Información", Aliases: []string{"Tecnologías de la Información (TI)", "IT", "Sistemas"}},
		{ID: "LIMPIEZA", Name: "Limpieza", Aliases: []string{"Limpieza y Aseo", "Cleaning"}},
		{ID: "MANTENIMIENTO", Name: "Mantenimiento", Aliases: []string{"Infraestructura", "Maintenance"}},
		{ID: "SEGURIDAD", Name: "Seguridad", Aliases: []string{"Seguridad Física", "Security"}},
		{ID: "SERVICIOS_GENERALES", Name: "Servicios Generales", Aliases: []string{"General Services"}},
		{ID: "ENFERMERIA", Name: "Enfermería", Aliases: []string{"Tópico", "Salud", "Health"}},
	})
}

// Areas returns the configured areas.
func (c *AreaCatalog) Areas() []Area {
	if c == nil {
		return nil
	}
	return append([]Area(nil), c.areas...)
}

// Canonical returns the area id for name, or the folded name when it is not catalogued.
func (c *AreaCatalog) Canonical(name string) string {
	folded := Fold(name)
	if c != nil {
		if id, ok := c.index[folded]; ok {
			return id
		}
	}
	return folded
}

// Contains reports whether any entry of list names the same area as area.
func (c *AreaCatalog) Contains(list []string, area string) bool {
	if strings.TrimSpace(area) == "" {
		return false
	}
	want := c.Canonical(area)
	for _, item := range list {
		if c.Canonical(item) == want {
			return true
		}
	}
	return false
}
