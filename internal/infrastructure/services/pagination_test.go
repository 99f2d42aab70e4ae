package services_test

import (
	"net/url"
	"testing"

	"github.com/sophialabs/mapforge/internal/infrastructure/services"
)

func seven() []int { return []int{1, 2, 3, 4, 5, 6, 7} }

func TestPaginate(t *testing.T) {
	cfg := services.Paging{DefaultSize: 3, MaxSize: 5}

	tests := []struct {
		name      string
		query     string
		wantData  []int
		wantPage  int
		wantSize  int
		wantPages int
		wantNext  bool
		wantPrev  bool
	}{
		{"first page default", "", []int{1, 2, 3}, 1, 3, 3, true, false},
		{"middle page", "page=2&size=3", []int{4, 5, 6}, 2, 3, 3, true, true},
		{"last page partial", "page=3&size=3", []int{7}, 3, 3, 3, false, true},
		{"beyond last page", "page=9", []int{}, 3, 3, 3, false, true},
		{"size clamped", "size=50", []int{1, 2, 3, 4, 5}, 1, 5, 2, true, false},
		{"invalid params ignored", "page=abc&size=-1", []int{1, 2, 3}, 1, 3, 3, true, false},
		{"offset limit", "offset=2&limit=2", []int{3, 4}, 2, 2, 4, true, true},
		{"offset only", "offset=6", []int{7}, 3, 3, 3, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("bad query: %v", err)
			}
			got := services.Paginate(seven(), cfg, q)

			if len(got.Data) != len(tt.wantData) {
				t.Fatalf("expected data %v, got %v", tt.wantData, got.Data)
			}
			for i := range tt.wantData {
				if got.Data[i] != tt.wantData[i] {
					t.Errorf("data[%d]: expected %d, got %d", i, tt.wantData[i], got.Data[i])
				}
			}
			if got.Page != tt.wantPage {
				t.Errorf("expected page %d, got %d", tt.wantPage, got.Page)
			}
			if got.Size != tt.wantSize {
				t.Errorf("expected size %d, got %d", tt.wantSize, got.Size)
			}
			if got.TotalPages != tt.wantPages {
				t.Errorf("expected %d pages, got %d", tt.wantPages, got.TotalPages)
			}
			if got.TotalItems != 7 {
				t.Errorf("expected 7 items, got %d", got.TotalItems)
			}
			if got.HasNext != tt.wantNext || got.HasPrevious != tt.wantPrev {
				t.Errorf("expected next=%v prev=%v, got next=%v prev=%v", tt.wantNext, tt.wantPrev, got.HasNext, got.HasPrevious)
			}
		})
	}
}

func TestPaginate_Empty(t *testing.T) {
	got := services.Paginate([]string(nil), services.DefaultPaging, url.Values{})
	if got.Data == nil || len(got.Data) != 0 {
		t.Errorf("expected empty non-nil data, got %#v", got.Data)
	}
	if got.TotalPages != 1 || got.Page != 1 || got.HasNext {
		t.Errorf("unexpected empty page %+v", got)
	}
}
