package version

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"0.2.0", "0.2.0", 0},
		{"0.2.0", "v0.2.1", -1},
		{"1.0.0", "0.9.9", 1},
		{"1.0.0-beta", "1.0.0", 0},
		{"1.2", "1.2.0", 0},
		{"0.10.0", "0.9.0", 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s", tt.a, tt.b), func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

// TestLatest verifies a newer tag is reported with its URL.
func TestLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dapctl/"+Version, r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"tag_name": "v9.0.0", "html_url": "https://example.com/r"}`)
	}))
	defer srv.Close()

	c := &Checker{URL: srv.URL}
	r, err := c.Latest(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Newer)
	assert.Equal(t, "9.0.0", r.Version)
	assert.Contains(t, r.String(), "https://example.com/r")
}

// TestLatest_Status verifies a failed response is an error.
func TestLatest_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := (&Checker{URL: srv.URL}).Latest(context.Background())
	assert.ErrorContains(t, err, "403")
}
