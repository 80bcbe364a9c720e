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

package arch

// sstatus bits consumed when constructing user trap frames.
const (
	// SstatusSIE is the supervisor interrupt-enable bit.
	SstatusSIE uintptr = 1 << 1
	// SstatusSPIE is the prior interrupt-enable bit, set so that sret
	// re-enables interrupts on entry to user mode.
	SstatusSPIE uintptr = 1 << 5
	// SstatusSPP is the previous-privilege bit; clear means user mode.
	SstatusSPP uintptr = 1 << 8
)

// GeneralRegisters is the RISC-V general-purpose register file. The field
// order is ABI: trap entry and exit code index into it by word offset.
type GeneralRegisters struct {
	RA  uintptr
	SP  uintptr
	GP  uintptr // only valid for user traps
	TP  uintptr // only valid for user traps
	T0  uintptr
	T1  uintptr
	T2  uintptr
	S0  uintptr
	S1  uintptr
	A0  uintptr
	A1  uintptr
	A2  uintptr
	A3  uintptr
	A4  uintptr
	A5  uintptr
	A6  uintptr
	A7  uintptr
	S2  uintptr
	S3  uintptr
	S4  uintptr
	S5  uintptr
	S6  uintptr
	S7  uintptr
	S8  uintptr
	S9  uintptr
	S10 uintptr
	S11 uintptr
	T3  uintptr
	T4  uintptr
	T5  uintptr
	T6  uintptr
}

// TrapFrame is the register state saved on entry to the kernel from user
// mode or an interrupt. The layout, all general registers followed by sepc,
// sstatus, kstack, satp and the trap handler entry point as contiguous
// machine words, is ABI shared with trap-entry code.
type TrapFrame struct {
	// Regs holds all general registers.
	Regs GeneralRegisters
	// Sepc is the supervisor exception program counter.
	Sepc uintptr
	// Sstatus is the supervisor status register.
	Sstatus uintptr
	// Kstack is the kernel stack installed for the next trap taken while
	// this frame's task runs in user mode.
	Kstack uintptr
	// Satp is the page-table root active for this frame's task.
	Satp uintptr
	// TrapHandler is the address trap entry transfers to.
	TrapHandler uintptr
}

// NewTrapFrame builds a first-entry trap frame: PC at entry, user stack
// installed, previous privilege forced to user, and interrupts held off
// until the return path deliberately enables them. Satp and the trap
// handler address come from the installed platform.
func NewTrapFrame(entry, ustackTop uintptr) *TrapFrame {
	tf := &TrapFrame{}
	tf.Regs.SP = ustackTop
	tf.Sepc = entry
	tf.Sstatus = (currentSstatus() | SstatusSPIE) &^ SstatusSPP &^ SstatusSIE
	if p := installedPlatform(); p != nil {
		tf.Satp = p.CurrentSatp()
		tf.TrapHandler = p.TrapHandlerAddr()
	}
	return tf
}

// currentSstatus reads the live sstatus value. Hosted, only the interrupt
// bit has a software source of truth.
func currentSstatus() uintptr {
	if IRQsEnabled() {
		return SstatusSIE
	}
	return 0
}
