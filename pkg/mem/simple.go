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

// SimpleAllocator backs a hosted run: every request is satisfied from the
// Go heap and mapped into a single address space. Real ports replace this
// with a frame allocator; tests and the demo CLI use it as-is.
type SimpleAllocator struct {
	// AS is the address space new pages are mapped into.
	AS *AddrSpace
}

// AllocUserPage implements PageAllocator.AllocUserPage. The returned page
// carries one reference for the caller; the address space holds its own.
func (a *SimpleAllocator) AllocUserPage(va VirtAddr, size uintptr, flags MappingFlags) (*Page, error) {
	pg := NewPage(size)
	pg.IncRef()
	if err := a.AS.AddRegion(va, pg, flags); err != nil {
		pg.DecRef(nil)
		pg.DecRef(nil)
		return nil, err
	}
	return pg, nil
}
