package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_String(t *testing.T) {
	t.Parallel()

	k := Key{
		Language:  LangGo,
		Kind:      KindFunction,
		Name:      "ServeHTTP",
		Path:      "internal/server/server.go",
		StartLine: 42,
		EndLine:   88,
	}

	assert.Equal(t, "go:function:ServeHTTP:internal_server_server.go:42-88", k.String())
}

func TestParseKey_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := []string{
		"go:function:ServeHTTP:internal_server_server.go:42-88",
		"python:class:Pipeline:pipeline.py:1-200",
		"rust:trait:Display:src_fmt.rs:10-30",
		"typescript:method:render:src_components_App.tsx:5-25",
		"cpp:function:parser::advance:src_parser.cc:12-48",
		"go:function:Println:unknown:0-0",
	}

	for _, s := range cases {
		t.Run(s, func(t *testing.T) {
			t.Parallel()
			k, err := ParseKey(s)
			require.NoError(t, err)
			assert.Equal(t, s, k.String())

			again, err := ParseKey(k.String())
			require.NoError(t, err)
			assert.Equal(t, k, again)
		})
	}
}

func TestParseKey_NameWithColons(t *testing.T) {
	t.Parallel()

	k, err := ParseKey("cpp:method:std::vector<int>::push_back:src_vec.cc:100-140")
	require.NoError(t, err)

	assert.Equal(t, Language("cpp"), k.Language)
	assert.Equal(t, Kind("method"), k.Kind)
	assert.Equal(t, "std::vector<int>::push_back", k.Name)
	assert.Equal(t, "src_vec.cc", k.Path)
	assert.Equal(t, 100, k.StartLine)
	assert.Equal(t, 140, k.EndLine)
}

func TestParseKey_SentinelForm(t *testing.T) {
	t.Parallel()

	k, err := ParseKey("go:function:Println:unknown:0-0")
	require.NoError(t, err)

	assert.True(t, k.External())
	assert.Equal(t, "Println", k.Name)
	assert.Equal(t, SentinelPath, k.Path)
	assert.Zero(t, k.StartLine)
	assert.Zero(t, k.EndLine)
}

func TestParseKey_Malformed(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"go:function:Foo",
		"go:function:Foo:main.go:notarange",
		"go:function:Foo:main.go:10",
		"go:function:Foo:main.go:10-",
		"go:function:Foo:main.go:-5-10:extra",
		"go::Foo:main.go:1-2",
	}

	for _, s := range cases {
		_, err := ParseKey(s)
		assert.Error(t, err, "expected parse failure for %q", s)
	}
}

func TestKey_External(t *testing.T) {
	t.Parallel()

	t.Run("SentinelIsExternal", func(t *testing.T) {
		t.Parallel()
		k := ExternalKey(LangGo, KindFunction, "Sprintf")
		assert.True(t, k.External())
	})

	t.Run("ZeroRangeWithRealPathIsNot", func(t *testing.T) {
		t.Parallel()
		k := Key{Language: LangGo, Kind: KindModule, Name: "server", Path: "internal/server"}
		assert.False(t, k.External())
	})

	t.Run("SentinelPathWithRealRangeIsNot", func(t *testing.T) {
		t.Parallel()
		k := Key{Language: LangGo, Kind: KindFunction, Name: "f", Path: SentinelPath, StartLine: 1, EndLine: 2}
		assert.False(t, k.External())
	})
}

func TestKey_IDMatchesAcrossPathSpellings(t *testing.T) {
	t.Parallel()

	slashed := Key{Language: LangGo, Kind: KindFunction, Name: "Run", Path: "cmd/app/main.go", StartLine: 3, EndLine: 9}
	underscored := Key{Language: LangGo, Kind: KindFunction, Name: "Run", Path: "cmd_app_main.go", StartLine: 3, EndLine: 9}

	assert.Equal(t, slashed.ID(), underscored.ID())
}

func TestNormalizeKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindFunction, NormalizeKind("fn"))
	assert.Equal(t, KindStruct, NormalizeKind("Struct"))
	assert.Equal(t, KindTrait, NormalizeKind("protocol"))
	assert.Equal(t, KindModule, NormalizeKind("namespace"))
	assert.Equal(t, KindFunction, NormalizeKind("something-new"))
}

func TestNormalizeLanguage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LangGo, NormalizeLanguage("golang"))
	assert.Equal(t, LangCpp, NormalizeLanguage("C++"))
	assert.Equal(t, LangUnknown, NormalizeLanguage("cobol"))
}

func TestEntity_New(t *testing.T) {
	t.Parallel()

	ext := New(ExternalKey(LangGo, KindFunction, "Printf"))
	assert.True(t, ext.External)

	local := New(Key{Language: LangGo, Kind: KindFunction, Name: "main", Path: "main.go", StartLine: 1, EndLine: 5})
	assert.False(t, local.External)
}

func TestEntity_Module(t *testing.T) {
	t.Parallel()

	e := New(Key{Language: LangGo, Kind: KindFunction, Name: "Run", Path: "internal/server/run.go", StartLine: 1, EndLine: 2})
	assert.Equal(t, "internal/server", e.Module())

	root := New(Key{Language: LangGo, Kind: KindFunction, Name: "main", Path: "main.go", StartLine: 1, EndLine: 2})
	assert.Equal(t, "", root.Module())

	ext := New(ExternalKey(LangGo, KindFunction, "Printf"))
	assert.Equal(t, "", ext.Module())
}
