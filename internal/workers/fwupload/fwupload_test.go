// SPDX-License-Identifier: BSD-3-Clause

package fwupload

import "testing"

func TestOrderSectionsCodeBeforeCust(t *testing.T) {
	in := []Section{
		{Class: MemoryClassCust, Data: []byte("cust1")},
		{Class: MemoryClassCode, Data: []byte("code1")},
		{Class: MemoryClassCust, Data: []byte("cust2")},
		{Class: MemoryClassCode, Data: []byte("code2")},
	}
	got := orderSections(in)
	want := []string{"code1", "code2", "cust1", "cust2"}
	if len(got) != len(want) {
		t.Fatalf("orderSections: got %d sections, want %d", len(got), len(want))
	}
	for i, s := range got {
		if string(s.Data) != want[i] {
			t.Fatalf("orderSections[%d]: got %q, want %q", i, s.Data, want[i])
		}
	}
}
