package handler

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query      string
		wantPage   int
		wantLimit  int
		wantOffset int
	}{
		{"", 1, 6, 0},
		{"?page=3", 3, 6, 12},
		{"?page=2&limit=10", 2, 10, 10},
		{"?limit=500", 1, maxPageSize, 0},
		{"?page=-1&limit=abc", 1, 6, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/recipes/"+tt.query, nil)
			p := parsePagination(r, 6)
			if p.page != tt.wantPage || p.limit != tt.wantLimit || p.offset() != tt.wantOffset {
				t.Errorf("got page=%d limit=%d offset=%d, want %d %d %d",
					p.page, p.limit, p.offset(), tt.wantPage, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestNewPageLinks(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com/api/recipes/?page=2&limit=2&tags=lunch", nil)
	p := parsePagination(r, 6)

	page := newPage(r, p, 5, []int{3, 4})
	if page.Count != 5 {
		t.Errorf("count = %d, want 5", page.Count)
	}
	if page.Next == nil || !strings.Contains(*page.Next, "page=3") || !strings.Contains(*page.Next, "tags=lunch") {
		t.Errorf("next = %v, want page=3 with filters kept", page.Next)
	}
	if page.Previous == nil || strings.Contains(*page.Previous, "page=") {
		t.Errorf("previous = %v, want first page without page param", page.Previous)
	}
}

func TestNewPageLastPage(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/users/", nil)
	page := newPage[int](r, parsePagination(r, 6), 0, nil)
	if page.Next != nil || page.Previous != nil {
		t.Errorf("expected no links, got next=%v previous=%v", page.Next, page.Previous)
	}
	if page.Results == nil {
		t.Error("results should be an empty slice, not nil")
	}
}

func TestPathID(t *testing.T) {
	tests := []struct {
		value string
		want  int64
		ok    bool
	}{
		{"42", 42, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.SetPathValue("id", tt.value)
		got, ok := pathID(r)
		if got != tt.want || ok != tt.ok {
			t.Errorf("pathID(%q) = %d, %v; want %d, %v", tt.value, got, ok, tt.want, tt.ok)
		}
	}
}
