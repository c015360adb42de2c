// SPDX-License-Identifier: Unlicense OR MIT

// Command weenyos boots the kernel against an in-memory console and
// drives its scheduler loop, printing the text console to stdout
// whenever the memory visualizer updates.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"weenyos/console"
	"weenyos/kernel"
)

// stdoutConsole adapts a console.Buffer into a kernel.ConsoleDevice
// by writing every cell straight through; the buffer itself is what
// gets printed to the terminal between scheduler passes.
type stdoutConsole struct {
	buf *console.Buffer
}

func (c *stdoutConsole) WriteCell(row, col int, cell uint16) {
	c.buf.Set(row, col, console.Cell(cell))
}

func (c *stdoutConsole) Clear() { c.buf.Clear() }

// noKeyboard never reports Control-C; a terminal frontend with real
// input would implement Keyboard itself.
type noKeyboard struct{}

func (noKeyboard) PollControlC() bool { return false }

func printBuffer(buf *console.Buffer) {
	for row := 0; row < console.Rows; row++ {
		line := make([]byte, console.Cols)
		for col := 0; col < console.Cols; col++ {
			line[col] = buf.At(row, col).Glyph()
		}
		fmt.Println(string(line))
	}
}

func main() {
	command := flag.String("command", "", "boot command string (malloc, alloctests, test, test2, or empty)")
	maxTicks := flag.Int("max-ticks", 200, "stop after this many scheduling rounds (it stops earlier once no process is runnable)")
	quiet := flag.Bool("quiet", false, "suppress the console dump after each scheduling round")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := kernel.DefaultBootConfig()
	buf := &console.Buffer{}
	buf.Clear()
	cons := &stdoutConsole{buf: buf}

	k := kernel.New(cfg, kernel.BuiltinLoader{}, cons, noKeyboard{}, log)

	pid, err := k.Boot(*command)
	if err != nil {
		log.Error("boot failed", "err", err)
		os.Exit(1)
	}

	viewer := &console.Viewer{}
	ticks := 0
	for ticks < *maxTicks {
		reg := k.Processes[pid].Registers
		reg.IntNo = kernel.TrapSysYield
		next, err := k.Dispatch(pid, reg)
		if err != nil {
			log.Info("scheduler stopped", "err", err)
			break
		}
		pid = next
		ticks++

		if k.DispGlobal {
			viewer.RenderPhysical(buf, k)
			viewer.Animate(buf, k, kernel.VirtAddr(cfg.MemSizeVirtual), cfg.HZ)
			if !*quiet {
				printBuffer(buf)
			}
		}
	}
}
