package gather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaptable/internal/catalog"
	"github.com/leapstack-labs/leaptable/internal/starlark"
	"github.com/leapstack-labs/leaptable/internal/testutil"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

var fakeProperties = map[core.ObjectType][]string{
	"halo":    {"Mvir", "Rvir"},
	"dm/halo": {"Mvir", "spin"},
}

type fakeSource struct {
	objectTypes []core.ObjectType
	queries     []string
	err         error
}

func (f *fakeSource) Gather(_ context.Context, objectType core.ObjectType, q string) (*core.ColumnResult, error) {
	f.objectTypes = append(f.objectTypes, objectType)
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := fakeProperties[objectType]; !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownObjectType, objectType)
	}
	return &core.ColumnResult{DataFormatted: []string{q}, Timestep: "ts"}, nil
}

func (f *fakeSource) ObjectTypes(context.Context) ([]core.ObjectType, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []core.ObjectType{"halo", "dm/halo"}, nil
}

func (f *fakeSource) Properties(_ context.Context, objectType core.ObjectType) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	props, ok := fakeProperties[objectType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownObjectType, objectType)
	}
	return props, nil
}

func (f *fakeSource) Dataset() starlark.DatasetInfo {
	return starlark.DatasetInfo{Name: "sim", Version: "abc"}
}

func serve(t *testing.T, src Source, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	require.NoError(t, SetupRoutes(r, src, testutil.NewTestLogger(t)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGather(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
		wantType   core.ObjectType
		wantQuery  string
		wantClass  string
	}{
		{
			name:       "plain query",
			path:       "/gather/halo/Mvir.json",
			wantStatus: http.StatusOK,
			wantType:   "halo",
			wantQuery:  "Mvir",
		},
		{
			name:       "escaped object type",
			path:       "/gather/hal%6F/Mvir.json",
			wantStatus: http.StatusOK,
			wantType:   "halo",
			wantQuery:  "Mvir",
		},
		{
			name:       "object type with slash marker",
			path:       "/gather/dm_slash_halo/Mvir.json",
			wantStatus: http.StatusOK,
			wantType:   "dm/halo",
			wantQuery:  "Mvir",
		},
		{
			name:       "slash marker",
			path:       "/gather/halo/Mvir_slash_Rvir.json",
			wantStatus: http.StatusOK,
			wantQuery:  "Mvir/Rvir",
		},
		{
			name:       "encoded percent sign",
			path:       "/gather/halo/number()%20%25%202.json",
			wantStatus: http.StatusOK,
			wantQuery:  "number() % 2",
		},
		{
			name:       "missing json suffix",
			path:       "/gather/halo/Mvir",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown object type",
			path:       "/gather/star/Mvir.json",
			wantStatus: http.StatusNotFound,
			wantClass:  "UnknownObjectType",
		},
		{
			name:       "storage failure",
			path:       "/gather/halo/Mvir.json",
			err:        errors.New("disk gone"),
			wantStatus: http.StatusInternalServerError,
			wantClass:  "InternalError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{err: tt.err}
			rec := serve(t, src, tt.path)
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantQuery != "" {
				var res core.ColumnResult
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
				assert.Equal(t, []string{tt.wantQuery}, res.DataFormatted)
				assert.Equal(t, []core.ObjectType{tt.wantType}, src.objectTypes)
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			}
			if tt.wantClass != "" {
				var res core.ColumnResult
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
				assert.Equal(t, tt.wantClass, res.ErrorClass)
				assert.True(t, res.Failed())
			}
		})
	}
}

func TestIndex(t *testing.T) {
	rec := serve(t, &fakeSource{}, "/gather")
	require.Equal(t, http.StatusOK, rec.Code)

	var idx IndexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &idx))
	assert.Equal(t, IndexResponse{Dataset: "sim", Version: "abc", ObjectTypes: []core.ObjectType{"halo", "dm/halo"}}, idx)

	rec = serve(t, &fakeSource{err: errors.New("boom")}, "/gather")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAutocomplete(t *testing.T) {
	builtins := starlark.BuiltinNames()

	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
		wantProps  []string
		wantClass  string
	}{
		{
			name:       "every object type",
			path:       "/autocomplete_words.json",
			wantStatus: http.StatusOK,
			wantProps:  []string{"Mvir", "Rvir", "spin"},
		},
		{
			name:       "single object type",
			path:       "/autocomplete_words.json?object_type=halo",
			wantStatus: http.StatusOK,
			wantProps:  []string{"Mvir", "Rvir"},
		},
		{
			name:       "unknown object type",
			path:       "/autocomplete_words.json?object_type=star",
			wantStatus: http.StatusNotFound,
			wantClass:  "UnknownObjectType",
		},
		{
			name:       "storage failure",
			path:       "/autocomplete_words.json",
			err:        errors.New("disk gone"),
			wantStatus: http.StatusInternalServerError,
			wantClass:  "InternalError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &fakeSource{err: tt.err}, tt.path)
			require.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantClass != "" {
				var res core.ColumnResult
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
				assert.Equal(t, tt.wantClass, res.ErrorClass)
				return
			}
			var words []string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &words))
			assert.Equal(t, append(tt.wantProps, builtins...), words)
		})
	}
}
