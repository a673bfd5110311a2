package server

import (
	"net/http"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteRegistry_ListIsSorted(t *testing.T) {
	mux := http.NewServeMux()
	rr := &RouteRegistry{}
	nop := func(w http.ResponseWriter, r *http.Request) {}

	Handle(mux, rr, "GET /api/zeta", "", "", nop)
	Handle(mux, rr, "POST /api/alpha", "", "", nop)
	Handle(mux, rr, "GET /api/alpha", "", "", nop)

	got := rr.List()
	require.Len(t, got, 3)
	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool {
		if got[i].Pattern != got[j].Pattern {
			return got[i].Pattern < got[j].Pattern
		}
		return got[i].Method < got[j].Method
	}))
	assert.Equal(t, "/api/alpha", got[0].Pattern)
	assert.Equal(t, "GET", got[0].Method)
}

func TestHandle_RejectsMalformedPatterns(t *testing.T) {
	mux := http.NewServeMux()
	rr := &RouteRegistry{}
	nop := func(w http.ResponseWriter, r *http.Request) {}

	assert.Panics(t, func() { Handle(mux, rr, "/api/items", "", "", nop) })
	assert.Panics(t, func() { Handle(mux, rr, "GET api/items", "", "", nop) })
}
