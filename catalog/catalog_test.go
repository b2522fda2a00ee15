package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowdiff/errors"
)

func TestLoadFile_YAML(t *testing.T) {
	m, err := LoadFile("testdata/catalog.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"ChatInput", "OpenAIModel"}, m.Names())

	s, ok := m.Lookup("OpenAIModel")
	require.True(t, ok)
	assert.Equal(t, []string{"api_key", "model_name", "temperature", "input_value"}, s.ParamNames())

	temp, ok := s.Param("temperature")
	require.True(t, ok)
	assert.Equal(t, 0.1, temp.Default)
	assert.Equal(t, ShapeNumber, temp.Shape())

	defaults := s.Defaults()
	assert.Equal(t, "gpt-4o-mini", defaults["model_name"])
	assert.Contains(t, defaults, "api_key")
	assert.Nil(t, defaults["api_key"])

	ports := s.Ports()
	require.Len(t, ports, 2)
	assert.Equal(t, "text_output", ports[0].Name)
}

func TestLoadFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"components":[{"type":"X","parameters":[{"name":"k","type":"str","required":true}]}]}`), 0o600))

	m, err := LoadFile(path)
	require.NoError(t, err)
	s, ok := m.Lookup("X")
	require.True(t, ok)
	k, _ := s.Param("k")
	assert.True(t, k.Required)
	assert.False(t, k.HasDefault())
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile("testdata/nope.yaml")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.ErrorIs(t, err, errors.ErrCatalogUnavailable)
}

func TestParseJSON_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing components", `{}`},
		{"unknown property", `{"components":[],"extra":1}`},
		{"component without type", `{"components":[{"parameters":[]}]}`},
		{"parameter without type", `{"components":[{"type":"X","parameters":[{"name":"k"}]}]}`},
		{"port without types", `{"components":[{"type":"X","outputPorts":[{"name":"o","types":[]}]}]}`},
		{"duplicate component", `{"components":[{"type":"X"},{"type":"X"}]}`},
		{"duplicate parameter", `{"components":[{"type":"X","parameters":[{"name":"k","type":"str"},{"name":"k","type":"int"}]}]}`},
		{"duplicate port", `{"components":[{"type":"X","outputPorts":[{"name":"o","types":["A"]},{"name":"o","types":["B"]}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSON([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "got %v", err)
		})
	}
}

func TestParseYAML_Invalid(t *testing.T) {
	_, err := ParseYAML([]byte("components: [\n"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestResolve(t *testing.T) {
	m := NewMap(&Schema{Type: "ChatInput"}, &Schema{Type: "ChatOutput"}, &Schema{Type: "OpenAIModel"})

	s, err := Resolve(m, "ChatInput")
	require.NoError(t, err)
	assert.Equal(t, "ChatInput", s.Type)

	_, err = Resolve(m, "OpenAIModle")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownComponent)
	assert.True(t, errors.IsInvalid(err))

	var unknown *UnknownComponentError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "OpenAIModel", unknown.Suggestion)
	assert.Contains(t, err.Error(), `did you mean "OpenAIModel"`)

	_, err = Resolve(m, "CompletelyDifferent")
	require.ErrorAs(t, err, &unknown)
	assert.Empty(t, unknown.Suggestion)

	_, err = Resolve(nil, "X")
	assert.ErrorIs(t, err, errors.ErrUnknownComponent)
}

func TestNearest(t *testing.T) {
	candidates := []string{"input_value", "model_name", "temperature"}
	assert.Equal(t, "temperature", Nearest("temprature", candidates))
	assert.Equal(t, "model_name", Nearest("MODEL_NAME", candidates))
	assert.Equal(t, "", Nearest("zzz", candidates))
	assert.Equal(t, "", Nearest("", candidates))
}

func TestShape(t *testing.T) {
	tests := map[string]Shape{
		"str": ShapeString, "code": ShapeString, "prompt": ShapeString,
		"int": ShapeNumber, "float": ShapeNumber,
		"bool": ShapeBoolean,
		"dict": ShapeObject, "NestedDict": ShapeObject,
		"list":  ShapeArray,
		"other": ShapeAny,
	}
	for typ, want := range tests {
		assert.Equal(t, want, ParamDef{Type: typ}.Shape(), typ)
	}
	assert.Equal(t, ShapeArray, ParamDef{Type: "str", List: true}.Shape())
}

func TestIsCredentialSlot(t *testing.T) {
	assert.True(t, ParamDef{Name: "openai_api_key", Password: true}.IsCredentialSlot())
	assert.True(t, ParamDef{Name: "client_secret", Password: true}.IsCredentialSlot())
	assert.False(t, ParamDef{Name: "openai_api_key"}.IsCredentialSlot())
	assert.False(t, ParamDef{Name: "pin", Password: true}.IsCredentialSlot())
}

func TestProvider_CachesAndDeduplicates(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	source := SourceFunc(func(context.Context) (Map, error) {
		loads.Add(1)
		<-release
		return NewMap(&Schema{Type: "X"}), nil
	})

	p, err := NewProvider(context.Background(), source, time.Minute)
	require.NoError(t, err)
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := p.Catalog(context.Background())
			assert.NoError(t, err)
			assert.Contains(t, m, "X")
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	_, err = p.Catalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), loads.Load())

	p.Invalidate()
	_, err = p.Catalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}

func TestProvider_NoCache(t *testing.T) {
	var loads atomic.Int32
	p, err := NewProvider(context.Background(), SourceFunc(func(context.Context) (Map, error) {
		loads.Add(1)
		return Map{}, nil
	}), 0)
	require.NoError(t, err)

	_, _ = p.Catalog(context.Background())
	_, _ = p.Catalog(context.Background())
	assert.Equal(t, int32(2), loads.Load())
}

func TestProvider_Errors(t *testing.T) {
	_, err := NewProvider(context.Background(), nil, time.Minute)
	assert.True(t, errors.IsInvalid(err))

	p, err := NewProvider(context.Background(), SourceFunc(func(context.Context) (Map, error) {
		return nil, fmt.Errorf("remote down")
	}), time.Minute)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Catalog(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.ErrorIs(t, err, errors.ErrCatalogUnavailable)

	bad, err := NewProvider(context.Background(), FileSource{Path: writeBadCatalog(t)}, time.Minute)
	require.NoError(t, err)
	defer bad.Close()
	_, err = bad.Catalog(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func writeBadCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("components:\n  - description: no type\n"), 0o600))
	return path
}
