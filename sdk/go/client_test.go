package annolinesdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientSendsCredentialsAndDecodes(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("X-Api-Key")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"assignment_ids":[7],"assignments":[{"id":7,"project_id":"p1","data_item_id":3,"annotator_id":"ann1","status":"assigned"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "al_secret"
	as, err := c.AssignTasks(context.Background(), "p1", "", 2)
	require.NoError(t, err)
	require.Len(t, as, 1)
	require.Equal(t, int64(7), as[0].ID)
	require.Equal(t, "al_secret", gotAuth)
	require.Equal(t, "/v0/tasks/assign", gotPath)
	require.Equal(t, "p1", gotBody["project_id"])
	require.NotContains(t, gotBody, "annotator_id")
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"forbidden","message":"assignment 4 belongs to another annotator"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Submit(context.Background(), 4, "cat")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	require.Equal(t, "forbidden", apiErr.Code)
}
