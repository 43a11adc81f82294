package htmltree

import (
	"strconv"
	"strings"
)

type decl struct {
	prop      string
	value     string
	important bool
}

type decls []decl

func parseStyle(s string) decls {
	var out decls
	for _, part := range strings.Split(s, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(value)
		if prop == "" {
			continue
		}
		d := decl{prop: prop}
		if i := strings.Index(strings.ToLower(value), "!important"); i >= 0 {
			d.important = true
			value = strings.TrimSpace(value[:i])
		}
		d.value = strings.ToLower(value)
		out = out.set(d.prop, d.value, d.important)
	}
	return out
}

func (ds decls) get(prop string) string {
	for _, d := range ds {
		if d.prop == prop {
			return d.value
		}
	}
	return ""
}

// set replaces prop in place or appends it. A non-important value never
// overrides an important one.
func (ds decls) set(prop, value string, important bool) decls {
	for i, d := range ds {
		if d.prop == prop {
			if d.important && !important {
				return ds
			}
			ds[i] = decl{prop: prop, value: value, important: important}
			return ds
		}
	}
	return append(ds, decl{prop: prop, value: value, important: important})
}

func (ds decls) String() string {
	var b strings.Builder
	for i, d := range ds {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(d.prop)
		b.WriteString(": ")
		b.WriteString(d.value)
		if d.important {
			b.WriteString(" !important")
		}
		b.WriteByte(';')
	}
	return b.String()
}

// px parses "12", "12px" or "12.5px"; anything else yields def.
func px(v string, def float64) float64 {
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
	if err != nil {
		return def
	}
	return f
}
