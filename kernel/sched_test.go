// SPDX-License-Identifier: Unlicense OR MIT

package kernel

import "testing"

func TestScheduleRoundRobinsOverRunnableProcesses(t *testing.T) {
	k := newTestKernel(t)
	if _, err := k.Boot("test2"); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if k.Processes[1].State != ProcRunnable || k.Processes[2].State != ProcRunnable {
		t.Fatalf("expected pids 1 and 2 runnable after boot test2, got %v and %v",
			k.Processes[1].State, k.Processes[2].State)
	}

	k.CurrentPID = 1
	next, err := k.Schedule()
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if next != 2 {
		t.Errorf("Schedule from pid 1 = %d, want 2", next)
	}

	next, err = k.Schedule()
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if next != 1 {
		t.Errorf("Schedule from pid 2 = %d, want 1 (wraps around)", next)
	}
}

func TestScheduleReportsNoRunnableProcess(t *testing.T) {
	k := newTestKernel(t)
	if _, err := k.Boot(""); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	k.ProcessFree(1)

	if _, err := k.Schedule(); err != ErrNoRunnableProcess {
		t.Errorf("Schedule with no runnable process: got %v, want ErrNoRunnableProcess", err)
	}
}

type controlCKeyboard struct{ pressed bool }

func (k *controlCKeyboard) PollControlC() bool { return k.pressed }

func TestScheduleStopsOnControlC(t *testing.T) {
	k := newTestKernel(t)
	kb := &controlCKeyboard{}
	k.Keyboard = kb
	if _, err := k.Boot(""); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	k.ProcessFree(1) // nothing runnable, forces a full scan
	kb.pressed = true

	if _, err := k.Schedule(); err != ErrExitRequested {
		t.Errorf("Schedule with Control-C pressed: got %v, want ErrExitRequested", err)
	}
}
