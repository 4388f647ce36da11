package util

import (
	"reflect"
	"testing"
)

func TestExpandRange(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    []int
		wantErr bool
	}{
		{name: "single value", spec: "5", want: []int{5}},
		{name: "simple range", spec: "1-5", want: []int{1, 2, 3, 4, 5}},
		{name: "comma separated", spec: "1,3,5", want: []int{1, 3, 5}},
		{name: "mixed", spec: "1-3,5,7-9", want: []int{1, 2, 3, 5, 7, 8, 9}},
		{name: "with spaces", spec: "1 - 3, 5", want: []int{1, 2, 3, 5}},
		{name: "duplicates removed", spec: "1-3,2-4", want: []int{1, 2, 3, 4}},
		{name: "empty string", spec: "", want: nil},
		{name: "start greater than end", spec: "5-1", wantErr: true},
		{name: "not a number", spec: "abc", wantErr: true},
		{name: "bad end", spec: "1-x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandRange(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExpandRange(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExpandRange(%q) = %v, want %v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestCompactRange(t *testing.T) {
	tests := []struct {
		values []int
		want   string
	}{
		{nil, ""},
		{[]int{7}, "7"},
		{[]int{1, 2, 3, 5, 7, 8, 9}, "1-3,5,7-9"},
		{[]int{9, 1, 2, 2, 3}, "1-3,9"},
	}
	for _, tt := range tests {
		if got := CompactRange(tt.values); got != tt.want {
			t.Errorf("CompactRange(%v) = %q, want %q", tt.values, got, tt.want)
		}
	}
}

func TestExpandPortRange(t *testing.T) {
	tests := []struct {
		spec    string
		want    []string
		wantErr bool
	}{
		{spec: "1/1-3", want: []string{"1/1", "1/2", "1/3"}},
		{spec: "eth0,2", want: []string{"eth0", "eth2"}},
		{spec: "10-11", want: []string{"10", "11"}},
		{spec: "Ethernet", wantErr: true},
		{spec: "1/3-1", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ExpandPortRange(tt.spec)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ExpandPortRange(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ExpandPortRange(%q) = %v, want %v", tt.spec, got, tt.want)
		}
	}
}
