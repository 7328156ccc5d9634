package logic

import (
	"testing"

	"github.com/neurlang/gradnet/datasets"
)

func TestRowOrder(t *testing.T) {
	wantInputs := [4][2]float32{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	testCases := []struct {
		name    string
		table   datasets.Table
		targets [4]float32
	}{
		{"xor", XOR(), [4]float32{0, 1, 1, 0}},
		{"and", AND(), [4]float32{0, 0, 0, 1}},
		{"or", OR(), [4]float32{0, 1, 1, 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if len(tc.table) != 4 {
				t.Fatalf("%s has %d rows, want 4", tc.name, len(tc.table))
			}
			for i, s := range tc.table {
				if s.Input[0] != wantInputs[i][0] || s.Input[1] != wantInputs[i][1] {
					t.Errorf("%s row %d input = %v, want %v", tc.name, i, s.Input, wantInputs[i])
				}
				if len(s.Target) != 1 || s.Target[0] != tc.targets[i] {
					t.Errorf("%s row %d target = %v, want [%g]", tc.name, i, s.Target, tc.targets[i])
				}
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := XOR()
	b := a.Clone()
	b[0].Input[0] = 9
	b[0].Target[0] = 9
	if a[0].Input[0] == 9 || a[0].Target[0] == 9 {
		t.Error("Clone shares backing arrays with its source")
	}
}
