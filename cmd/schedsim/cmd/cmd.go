// Package cmd implements schedsim, a hosted command-line driver for
// kernel/sched: it wires the scheduler's process factory, ready queue,
// dispatcher, message bus and handle table against a simulated
// address-space/memory backend (backend.go) so the same Go code that runs
// in ring 0 on real hardware can be booted, ticked and inspected from an
// ordinary terminal. It mirrors arctir-proctor's cobra command tree
// (`proctor process ls/get/tree`) with the scheduler's own vocabulary
// (`ps`, `tick`, `send`, `handles`, `dump`).
package cmd

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"unsafe"

	"github.com/davecgh/go-spew/spew"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nanokernel/nanokernel/kernel/sched"
)

var sim *simulator

// demoTaskA and demoTaskB are trivial kernel-entry functions used to
// populate the ready queue with more than the idle process whenever a
// command needs a realistic multi-process fixture; they are never actually
// invoked (the simulated TaskSwitch never resumes them), only their code
// addresses are recorded as a thread's initial RIP.
func demoTaskA() {}
func demoTaskB() {}

// bootstrap resets the scheduler, installs a fresh simulated backend, boots
// the idle process and creates two demo kernel tasks, giving every
// subcommand a non-trivial ready queue to act on. schedsim has no
// persistent state across invocations (spec.md §6: "Persistent state:
// none"), so every run starts from this same fixture.
func bootstrap() error {
	sched.Reset()
	sim = newSimulator()
	sim.install()

	if _, err := bootIdle(); err != nil {
		return err
	}
	if _, err := sched.CreateProcess(demoTaskA); err != nil {
		return fmt.Errorf("create demo task A: %s", err)
	}
	if _, err := sched.CreateProcess(demoTaskB); err != nil {
		return fmt.Errorf("create demo task B: %s", err)
	}
	return nil
}

// bootIdle runs kernel/sched.Initialize(). The installed TaskSwitch backend
// is a no-op, so unlike on real hardware Initialize returns normally here
// instead of iret-ing into the idle loop forever.
func bootIdle() (sched.PID, error) {
	sched.Initialize()
	pid, ok := sched.CurrentPID()
	if !ok {
		return 0, fmt.Errorf("initialize did not select a current process")
	}
	return pid, nil
}

var rootCmd = &cobra.Command{
	Use:   "schedsim",
	Short: "Hosted driver for the nanokernel scheduler core",
	Long: "schedsim boots a fresh scheduler fixture (idle process plus two demo\n" +
		"kernel tasks) against a simulated address-space backend, then runs the\n" +
		"requested inspection or mutation against it — the moral equivalent of\n" +
		"ps/top for a kernel that only exists in this process.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return bootstrap()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List every process in the scheduler's process table",
	Run: func(cmd *cobra.Command, args []string) {
		runPS()
	},
}

var tickCmd = &cobra.Command{
	Use:   "tick [n]",
	Short: "Fire the timer ISR n times (default 1) and report the resulting current PID",
	Run: func(cmd *cobra.Command, args []string) {
		n := 1
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				outputErrorAndFail(fmt.Sprintf("invalid tick count %q: %s", args[0], err))
			}
			n = v
		}
		for i := 0; i < n; i++ {
			sched.Tick()
		}
		cur, _ := sched.CurrentPID()
		fmt.Printf("after %d tick(s): current = %d\n", n, cur)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <from-pid> <to-pid> <text>",
	Short: "Send a message from one process to another",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		from, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			outputErrorAndFail(fmt.Sprintf("invalid sender pid: %s", err))
		}
		to, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			outputErrorAndFail(fmt.Sprintf("invalid receiver pid: %s", err))
		}

		msg := sched.Message{SenderPID: from, ReceiverPID: to}
		copy(msg.Payload[:], args[2])

		if sendErr := sched.SendMessage(msg); sendErr != nil {
			outputErrorAndFail(fmt.Sprintf("send failed: %s", sendErr))
		}
		fmt.Printf("sent %d bytes from %d to %d\n", len(args[2]), from, to)
	},
}

var recvCmd = &cobra.Command{
	Use:   "recv <pid>",
	Short: "Pop the next message addressed to pid, if any",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pid := mustParsePID(args[0])
		proc := sched.FindProcessByPID(pid)
		if proc == nil {
			outputErrorAndFail(fmt.Sprintf("no such process: %d", pid))
		}

		msg := sched.ReceiveMessage(proc)
		if msg.SenderPID == 0 && msg.ReceiverPID == 0 {
			fmt.Println("queue empty")
			return
		}
		fmt.Printf("from %d: %q\n", msg.SenderPID, bytes.TrimRight(msg.Payload[:], "\x00"))
	},
}

var handlesCmd = &cobra.Command{
	Use:   "handles <pid> register|find <value>",
	Short: "Register or look up a handle in pid's handle table",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		pid := mustParsePID(args[0])
		proc := sched.FindProcessByPID(pid)
		if proc == nil {
			outputErrorAndFail(fmt.Sprintf("no such process: %d", pid))
		}

		switch args[1] {
		case "register":
			ptr, err := strconv.ParseUint(args[2], 0, 64)
			if err != nil {
				outputErrorAndFail(fmt.Sprintf("invalid pointer value: %s", err))
			}
			h, hErr := proc.RegisterHandle(uintptr(ptr))
			if hErr != nil {
				outputErrorAndFail(fmt.Sprintf("register failed: %s", hErr))
			}
			fmt.Printf("handle %d\n", h)
		case "find":
			v, err := strconv.ParseUint(args[2], 10, 32)
			if err != nil {
				outputErrorAndFail(fmt.Sprintf("invalid handle value: %s", err))
			}
			ptr := proc.FindHandle(sched.Handle(v))
			fmt.Printf("0x%x\n", ptr)
		default:
			outputErrorAndFail(fmt.Sprintf("unknown handles subcommand %q, want register|find", args[1]))
		}
	},
}

var loadCmd = &cobra.Command{
	Use:   "load <elf-path>",
	Short: "Load an ELF64 image from disk into a fresh process and report its mapped pages",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		img, err := os.ReadFile(args[0])
		if err != nil {
			outputErrorAndFail(fmt.Sprintf("reading %s: %s", args[0], err))
		}
		if len(img) < 4 || !bytes.Equal(img[:4], []byte{0x7f, 'E', 'L', 'F'}) {
			outputErrorAndFail(fmt.Sprintf("%s does not start with the ELF magic number", args[0]))
		}

		base := uintptr(unsafe.Pointer(&img[0]))
		pid, loadErr := sched.LoadELF(base)
		runtime.KeepAlive(img)
		if loadErr != nil {
			outputErrorAndFail(fmt.Sprintf("load_elf failed: %s", loadErr))
		}

		proc := sched.FindProcessByPID(pid)
		space := sim.spaces[len(sim.spaces)-1]
		fmt.Printf("loaded pid %d, pml4=0x%x, %d page(s) mapped\n", pid, proc.AddressSpace().PML4Address(), len(space.mapped))
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump <pid>",
	Short: "Pretty-print a process's full in-memory record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pid := mustParsePID(args[0])
		proc := sched.FindProcessByPID(pid)
		if proc == nil {
			outputErrorAndFail(fmt.Sprintf("no such process: %d", pid))
		}
		spew.Dump(proc)
	},
}

// SetupCLI constructs the cobra command tree for schedsim. Do not use this
// function from other Go packages; import kernel/sched directly instead.
func SetupCLI() *cobra.Command {
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(recvCmd)
	rootCmd.AddCommand(handlesCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(dumpCmd)
	return rootCmd
}

func runPS() {
	order := sched.ReadyQueueOrder()
	queued := make(map[sched.PID]bool, len(order))
	for _, pid := range order {
		queued[pid] = true
	}
	cur, _ := sched.CurrentPID()

	rows := [][]string{}
	for pid, proc := range sched.Snapshot() {
		marker := ""
		if pid == cur {
			marker = "*"
		}
		rows = append(rows, []string{
			marker + strconv.FormatUint(pid, 10),
			proc.State().String(),
			strconv.Itoa(int(proc.Priority())),
			fmt.Sprintf("%d/%d", proc.TimeSlice(), proc.TimeSliceDefault()),
			strconv.Itoa(proc.MessageQueueDepth()),
			strconv.FormatUint(uint64(proc.HandleCount()-1), 10),
			strconv.FormatBool(queued[pid]),
		})
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"PID", "STATE", "PRIO", "SLICE/DEFAULT", "MSGQ", "HANDLES", "QUEUED"})
	table.AppendBulk(rows)
	table.Render()
	fmt.Print(buf.String())
}

func mustParsePID(s string) sched.PID {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		outputErrorAndFail(fmt.Sprintf("invalid pid %q: %s", s, err))
	}
	return v
}

func outputErrorAndFail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
