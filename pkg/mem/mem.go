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

// Package mem defines the memory interfaces the task core consumes: shared
// pages, address spaces, and the user-page allocator seam. The core never
// implements physical-memory bookkeeping; it asks the installed allocator
// for user pages and hands them to address spaces.
package mem

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// VirtAddr is a virtual address.
type VirtAddr uintptr

// String implements fmt.Stringer.
func (va VirtAddr) String() string {
	return fmt.Sprintf("VA(%#x)", uintptr(va))
}

// PageSize4K is the only page size the core deals in.
const PageSize4K = 0x1000

// Layout constants for per-task user memory.
const (
	// UStackSize is the size of each task's user stack allocation.
	UStackSize = 4 * PageSize4K

	// UStackBase is the address the first task's user stack descends from;
	// task N's stack lives at UStackBase - N*UStackSize.
	UStackBase = 0x7f_ffff_f000

	// UserStart is the entry point of freshly loaded user programs.
	UserStart = 0x1_0000
)

// AlignUp4K rounds size up to a whole number of 4 KiB pages.
func AlignUp4K(size uintptr) uintptr {
	return (size + PageSize4K - 1) &^ (PageSize4K - 1)
}

// MappingFlags describe the access rights of a mapping.
type MappingFlags uint8

// Mapping permission bits.
const (
	FlagRead MappingFlags = 1 << iota
	FlagWrite
	FlagExecute
	FlagUser
)

// Page is a reference-counted run of physically-backed memory, always a
// whole number of 4 KiB pages. Pages are shared: fork maps the same page
// into several address spaces, and the backing is released only when the
// last holder drops its reference.
type Page struct {
	data []byte
	refs atomic.Int64
}

// NewPage allocates a zeroed page run of at least size bytes, rounded up to
// 4 KiB, with one reference held by the caller.
func NewPage(size uintptr) *Page {
	p := &Page{data: make([]byte, AlignUp4K(size))}
	p.refs.Store(1)
	return p
}

// Size returns the byte length of the page run.
func (p *Page) Size() uintptr {
	return uintptr(len(p.data))
}

// Data returns the backing bytes.
func (p *Page) Data() []byte {
	return p.data
}

// Ptr returns the kernel-visible base address of the backing.
func (p *Page) Ptr() unsafe.Pointer {
	return unsafe.Pointer(&p.data[0])
}

// IncRef adds a reference.
func (p *Page) IncRef() {
	p.refs.Add(1)
}

// DecRef drops a reference, invoking release when the last one goes away.
// release may be nil.
func (p *Page) DecRef(release func(*Page)) {
	switch n := p.refs.Add(-1); {
	case n < 0:
		panic("mem: Page.DecRef on released page")
	case n == 0:
		if release != nil {
			release(p)
		}
	}
}

// ReadRefs returns the current reference count, for assertions.
func (p *Page) ReadRefs() int64 {
	return p.refs.Load()
}

// PageAllocator hands out user pages and maps them into the current address
// space. Implementations live outside the task core.
type PageAllocator interface {
	// AllocUserPage allocates size bytes of user memory, maps them at va
	// with the given flags in the current address space, and returns the
	// backing page with one reference transferred to the caller.
	AllocUserPage(va VirtAddr, size uintptr, flags MappingFlags) (*Page, error)
}

var allocator atomic.Pointer[allocatorHolder]

type allocatorHolder struct{ a PageAllocator }

// SetAllocator installs the user-page allocator.
func SetAllocator(a PageAllocator) {
	allocator.Store(&allocatorHolder{a: a})
}

// HaveAllocator reports whether an allocator has been installed; user-mode
// task setup is skipped without one.
func HaveAllocator() bool {
	return allocator.Load() != nil
}

// AllocUserPage allocates and maps a user page via the installed allocator.
func AllocUserPage(va VirtAddr, size uintptr, flags MappingFlags) (*Page, error) {
	h := allocator.Load()
	if h == nil {
		panic("mem: no page allocator installed")
	}
	return h.a.AllocUserPage(va, size, flags)
}

// Region is one mapping inside an address space.
type Region struct {
	Page  *Page
	Flags MappingFlags
}

// AddrSpace is a user address space: a set of regions plus the page-table
// root that trap frames are stamped with. It is shared across fork by
// pointer; all mutation happens under mu.
type AddrSpace struct {
	mu      sync.Mutex
	regions map[VirtAddr]Region
	satp    uintptr
}

// NewAddrSpace creates an empty address space with the given page-table
// root.
func NewAddrSpace(satp uintptr) *AddrSpace {
	return &AddrSpace{
		regions: make(map[VirtAddr]Region),
		satp:    satp,
	}
}

// Satp returns the page-table root of the address space.
func (as *AddrSpace) Satp() uintptr {
	return as.satp
}

// AddRegion maps page at va. The caller's page reference is transferred to
// the address space.
func (as *AddrSpace) AddRegion(va VirtAddr, page *Page, flags MappingFlags) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	if _, ok := as.regions[va]; ok {
		return fmt.Errorf("mem: mapping already exists at %s", va)
	}
	as.regions[va] = Region{Page: page, Flags: flags}
	return nil
}

// Query returns the region mapped at va.
func (as *AddrSpace) Query(va VirtAddr) (Region, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	r, ok := as.regions[va]
	return r, ok
}

// RemoveRegion unmaps va, dropping the address space's page reference.
// Removing an unmapped address is a no-op.
func (as *AddrSpace) RemoveRegion(va VirtAddr) {
	as.mu.Lock()
	r, ok := as.regions[va]
	if ok {
		delete(as.regions, va)
	}
	as.mu.Unlock()
	if ok {
		r.Page.DecRef(nil)
	}
}
