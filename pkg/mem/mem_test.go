// Copyright 2023 The axos Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mem

import "testing"

func TestAlignUp4K(t *testing.T) {
	for _, tc := range []struct{ in, want uintptr }{
		{0, 0},
		{1, PageSize4K},
		{PageSize4K, PageSize4K},
		{PageSize4K + 1, 2 * PageSize4K},
	} {
		if got := AlignUp4K(tc.in); got != tc.want {
			t.Errorf("AlignUp4K(%#x) = %#x, want %#x", tc.in, got, tc.want)
		}
	}
}

func TestPageRefs(t *testing.T) {
	pg := NewPage(100)
	if pg.Size() != PageSize4K {
		t.Errorf("Size = %#x, want %#x", pg.Size(), PageSize4K)
	}
	if pg.ReadRefs() != 1 {
		t.Fatalf("fresh page has %d refs, want 1", pg.ReadRefs())
	}
	pg.IncRef()
	released := false
	pg.DecRef(func(*Page) { released = true })
	if released {
		t.Fatal("released with a reference outstanding")
	}
	pg.DecRef(func(*Page) { released = true })
	if !released {
		t.Fatal("not released when the last reference dropped")
	}
}

func TestAddrSpaceRegions(t *testing.T) {
	as := NewAddrSpace(0x8000_0000)
	if as.Satp() != 0x8000_0000 {
		t.Errorf("Satp = %#x", as.Satp())
	}
	pg := NewPage(PageSize4K)
	const va = VirtAddr(0x10_0000)
	if err := as.AddRegion(va, pg, FlagRead|FlagWrite); err != nil {
		t.Fatalf("AddRegion: %v", err)
	}
	if err := as.AddRegion(va, pg, FlagRead); err == nil {
		t.Error("double mapping did not fail")
	}
	r, ok := as.Query(va)
	if !ok || r.Page != pg {
		t.Fatalf("Query(%s) = %+v, %v", va, r, ok)
	}
	as.RemoveRegion(va)
	if _, ok := as.Query(va); ok {
		t.Error("region still mapped after RemoveRegion")
	}
	if pg.ReadRefs() != 0 {
		t.Errorf("page refs = %d after unmap, want 0", pg.ReadRefs())
	}
}

func TestSimpleAllocator(t *testing.T) {
	as := NewAddrSpace(0)
	a := &SimpleAllocator{AS: as}
	const va = VirtAddr(0x20_0000)
	pg, err := a.AllocUserPage(va, 3*PageSize4K, FlagRead|FlagWrite|FlagUser)
	if err != nil {
		t.Fatalf("AllocUserPage: %v", err)
	}
	if pg.Size() != 3*PageSize4K {
		t.Errorf("Size = %#x, want %#x", pg.Size(), 3*PageSize4K)
	}
	// One reference for the caller, one held by the mapping.
	if pg.ReadRefs() != 2 {
		t.Errorf("refs = %d, want 2", pg.ReadRefs())
	}
	r, ok := as.Query(va)
	if !ok || r.Page != pg {
		t.Fatal("allocated page not mapped")
	}
	if _, err := a.AllocUserPage(va, PageSize4K, FlagRead); err == nil {
		t.Error("overlapping allocation did not fail")
	}
}
