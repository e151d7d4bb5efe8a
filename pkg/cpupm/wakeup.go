/*
Copyright 2025 Intel Corporation

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cpupm

import "fmt"

// WakeupCheck is a bit of a wakeup mask register that is unmasked only
// when the named wakeup source is armed.
type WakeupCheck struct {
	Bit    uint   `json:"bit"`
	Source string `json:"source"`
}

// WakeupMask is one wakeup mask register with its status register. Set
// bits of Mask stay masked during system power-down.
type WakeupMask struct {
	MaskReg   uint32        `json:"maskReg"`
	StatReg   uint32        `json:"statReg"`
	Mask      uint32        `json:"mask"`
	Checklist []WakeupCheck `json:"checklist,omitempty"`
}

// WakeupMaskConfig lists the wakeup sources kept unmasked while a
// system-level domain is powered down. It is immutable after load.
type WakeupMaskConfig struct {
	Masks          []WakeupMask `json:"masks,omitempty"`
	ExtIntMaskRegs []uint32     `json:"extIntMaskRegs,omitempty"`
}

func (w *WakeupMaskConfig) validate() error {
	for i, m := range w.Masks {
		for _, c := range m.Checklist {
			if c.Bit > 31 {
				return fmt.Errorf("wakeup mask #%d: checklist bit %d out of range", i, c.Bit)
			}
			if c.Source == "" {
				return fmt.Errorf("wakeup mask #%d: checklist bit %d has no source", i, c.Bit)
			}
		}
	}
	return nil
}

// program clears pending wakeup status and writes the effective masks.
func (w *WakeupMaskConfig) program(hw CAL) {
	for _, m := range w.Masks {
		mustCAL("wakeup status clear", hw.WriteReg(m.StatReg, 0))
		val := m.Mask
		for _, c := range m.Checklist {
			if hw.WakeupSourceArmed(c.Source) {
				val &^= 1 << c.Bit
			}
		}
		mustCAL("wakeup mask write", hw.WriteReg(m.MaskReg, val))
	}
	if len(w.ExtIntMaskRegs) > 0 {
		eint := hw.ExtIntWakeMask()
		for _, reg := range w.ExtIntMaskRegs {
			mustCAL("eint wakeup mask write", hw.WriteReg(reg, eint))
		}
	}
}
