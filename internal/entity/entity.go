// Package entity defines the code entity model for Lattice.
//
// An entity is one named code construct (function, struct, module, …)
// extracted from a source tree. Entities are addressed by a structured
// Key that is stable across runs and round-trippable through its string
// form, including the sentinel form used for unresolved external
// references.
package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// Language identifies the source language an entity was extracted from.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangC          Language = "c"
	LangCpp        Language = "cpp"
	LangCSharp     Language = "csharp"
	LangRuby       Language = "ruby"
	LangPHP        Language = "php"
	LangKotlin     Language = "kotlin"
	LangSwift      Language = "swift"
	LangUnknown    Language = "unknown"
)

// Kind is the normalized entity kind, language-agnostic.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
	KindTrait     Kind = "trait"
	KindModule    Kind = "module"
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindTypeAlias Kind = "type_alias"
	KindConstant  Kind = "constant"
	KindVariable  Kind = "variable"
	KindMacro     Kind = "macro"
)

// SentinelPath is the reserved file path of an unresolved external
// reference (e.g. a standard-library call). Paired with line range
// (0,0) it marks an entity with no source location.
const SentinelPath = "unknown"

// kindAliases maps raw extractor kind strings to normalized kinds.
// Extractors for different languages report overlapping construct
// names; ranking and search only ever see the normalized kind.
var kindAliases = map[string]Kind{
	"function":   KindFunction,
	"func":       KindFunction,
	"fn":         KindFunction,
	"method":     KindMethod,
	"struct":     KindStruct,
	"class":      KindClass,
	"enum":       KindEnum,
	"trait":      KindTrait,
	"interface":  KindInterface,
	"protocol":   KindTrait,
	"module":     KindModule,
	"package":    KindModule,
	"namespace":  KindModule,
	"type_alias": KindTypeAlias,
	"typedef":    KindTypeAlias,
	"type":       KindTypeAlias,
	"const":      KindConstant,
	"constant":   KindConstant,
	"var":        KindVariable,
	"variable":   KindVariable,
	"macro":      KindMacro,
}

// languageAliases maps raw extractor language strings to Language values.
var languageAliases = map[string]Language{
	"go":         LangGo,
	"golang":     LangGo,
	"python":     LangPython,
	"py":         LangPython,
	"typescript": LangTypeScript,
	"ts":         LangTypeScript,
	"javascript": LangJavaScript,
	"js":         LangJavaScript,
	"rust":       LangRust,
	"rs":         LangRust,
	"java":       LangJava,
	"c":          LangC,
	"cpp":        LangCpp,
	"c++":        LangCpp,
	"csharp":     LangCSharp,
	"c#":         LangCSharp,
	"ruby":       LangRuby,
	"rb":         LangRuby,
	"php":        LangPHP,
	"kotlin":     LangKotlin,
	"kt":         LangKotlin,
	"swift":      LangSwift,
}

// NormalizeKind maps a raw extractor kind string to a normalized Kind.
// Unrecognized kinds fall back to KindFunction so that a new extractor
// never produces entities invisible to ranking.
func NormalizeKind(raw string) Kind {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return k
	}
	return KindFunction
}

// NormalizeLanguage maps a raw extractor language string to a Language.
func NormalizeLanguage(raw string) Language {
	if l, ok := languageAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return l
	}
	return LangUnknown
}

// Key uniquely addresses an entity within one snapshot.
//
// The tuple (Language, Kind, Name, Path, StartLine, EndLine) is the
// entity's identity. Path is the normalized relative file path; the
// string form replaces path separators with underscores so the whole
// key stays a single colon-delimited token.
type Key struct {
	Language  Language `json:"language"`
	Kind      Kind     `json:"entity_type"`
	Name      string   `json:"name"`
	Path      string   `json:"file_path"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
}

// External reports whether the key denotes an unresolved external
// reference (sentinel path with no line range).
func (k Key) External() bool {
	return k.Path == SentinelPath && k.StartLine == 0 && k.EndLine == 0
}

// String renders the key in its stable wire form:
// language:kind:name:path_with_separators_replaced_by_underscores:start-end
func (k Key) String() string {
	path := strings.ReplaceAll(k.Path, "/", "_")
	return fmt.Sprintf("%s:%s:%s:%s:%d-%d", k.Language, k.Kind, k.Name, path, k.StartLine, k.EndLine)
}

// ID returns the canonical identity string used for map lookups and
// lexical ordering. Two keys naming the same entity through different
// path spellings (slashes vs. underscores) share one ID.
func (k Key) ID() string {
	return k.String()
}

// ParseKey parses the string form produced by Key.String.
//
// The sentinel form language:kind:name:unknown:0-0 parses like any
// other key. Path separators are not recoverable from the wire form;
// the parsed key carries the underscored path and resolves to the same
// entity through Key.ID. Language and kind are read from the left and
// path and line range from the right, so names containing colons (C++
// "ns::fn") survive the round trip.
func ParseKey(s string) (Key, error) {
	lang, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, fmt.Errorf("malformed entity key %q: want 5 colon-separated fields", s)
	}
	kind, rest, ok := strings.Cut(rest, ":")
	if !ok {
		return Key{}, fmt.Errorf("malformed entity key %q: want 5 colon-separated fields", s)
	}

	lastColon := strings.LastIndex(rest, ":")
	if lastColon < 0 {
		return Key{}, fmt.Errorf("malformed entity key %q: want 5 colon-separated fields", s)
	}
	lineRange := rest[lastColon+1:]
	pathColon := strings.LastIndex(rest[:lastColon], ":")
	if pathColon < 0 {
		return Key{}, fmt.Errorf("malformed entity key %q: want 5 colon-separated fields", s)
	}
	name := rest[:pathColon]
	path := rest[pathColon+1 : lastColon]
	dash := strings.LastIndex(lineRange, "-")
	if dash <= 0 || dash == len(lineRange)-1 {
		return Key{}, fmt.Errorf("malformed line range %q in key %q", lineRange, s)
	}

	start, err := strconv.Atoi(lineRange[:dash])
	if err != nil {
		return Key{}, fmt.Errorf("malformed start line in key %q: %w", s, err)
	}
	end, err := strconv.Atoi(lineRange[dash+1:])
	if err != nil {
		return Key{}, fmt.Errorf("malformed end line in key %q: %w", s, err)
	}
	if start < 0 || end < 0 {
		return Key{}, fmt.Errorf("negative line range in key %q", s)
	}

	k := Key{
		Language:  Language(lang),
		Kind:      Kind(kind),
		Name:      name,
		Path:      path,
		StartLine: start,
		EndLine:   end,
	}
	if k.Language == "" || k.Kind == "" || k.Name == "" || k.Path == "" {
		return Key{}, fmt.Errorf("empty field in entity key %q", s)
	}
	return k, nil
}

// ExternalKey builds the sentinel key for an unresolved reference.
func ExternalKey(lang Language, kind Kind, name string) Key {
	return Key{
		Language: lang,
		Kind:     kind,
		Name:     name,
		Path:     SentinelPath,
	}
}

// Entity is one named code construct in a snapshot.
type Entity struct {
	Key Key `json:"key"`

	// External marks an unresolved reference outside the indexed
	// codebase. Derived from the sentinel key form at construction so
	// callers never compare against the magic path themselves.
	External bool `json:"external"`
}

// New builds an Entity from its key, deriving the External flag.
func New(key Key) *Entity {
	return &Entity{Key: key, External: key.External()}
}

// Module returns the directory portion of the entity's path, used as
// the module-proximity signal by clustering. External entities have no
// module.
func (e *Entity) Module() string {
	if e.External {
		return ""
	}
	p := e.Key.Path
	if idx := strings.LastIndex(p, "/"); idx > 0 {
		return p[:idx]
	}
	return ""
}
