package cmds

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/eclipse-openj9/openj9-sub015/pkg/config"
	"github.com/eclipse-openj9/openj9-sub015/pkg/image"
	"github.com/eclipse-openj9/openj9-sub015/pkg/logflags"
	"github.com/eclipse-openj9/openj9-sub015/pkg/mem"
	"github.com/eclipse-openj9/openj9-sub015/pkg/mvs"
	"github.com/eclipse-openj9/openj9-sub015/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// manifest is the path of the dump manifest.
	manifest string
	// color overrides the color setting of the config file.
	color string

	// regs and lstack flags.
	tcbAddr string
	direct  bool
	raw     bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const zdumpCommandLongDesc = `zdump recovers the tasks and registers of address spaces of a system dump.

A dump is described by a manifest, a YAML file listing every address space
and the files its memory is read from:

	spaces:
	- id: "0001"
	  root: "0001"
	  mode64: true
	  regions:
	  - file: asid0001.bin
	    addr: 0
	    length: 0x100000
	    compression: zstd

Address spaces are selected by their id.`

// rawConfig dumps --raw structures field by field, without calling their
// String methods.
var rawConfig = spew.ConfigState{
	Indent:                  " ",
	DisableMethods:          true,
	DisablePointerAddresses: true,
}

var errTasksFailed = errors.New("registers could not be recovered for some tasks")

// New returns an initialized command tree.
func New(docCall bool) *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	rootCommand = &cobra.Command{
		Use:           "zdump",
		Short:         "zdump recovers task registers from system dumps.",
		Long:          zdumpCommandLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'zdump help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'zdump help log').")
	rootCommand.PersistentFlags().StringVarP(&manifest, "manifest", "m", conf.Manifest, "Dump manifest.")
	rootCommand.PersistentFlags().StringVar(&color, "color", conf.Color, "Colorize output: auto, always or never.")

	// 'spaces' subcommand.
	spacesCommand := &cobra.Command{
		Use:   "spaces",
		Short: "Lists the address spaces of the dump.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDump(cmd, func(out *printer, sess *session) error {
				for _, s := range sess.dump.Spaces() {
					mode := "31-bit"
					if s.Is64Bit() {
						mode = "64-bit"
					}
					out.printf("%s %s\n", out.title(s.ID()), mode)
				}
				return nil
			})
		},
	}
	rootCommand.AddCommand(spacesCommand)

	// 'tasks' subcommand.
	tasksCommand := &cobra.Command{
		Use:   "tasks <asid>",
		Short: "Lists the tasks of an address space.",
		Long: `Lists the tasks of an address space in task queue order.

A task queue that cannot be walked is reported as an address space without
tasks; use --log --log-output=tcb to see why.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSpace(cmd, args[0], func(out *printer, space *image.Space, tasks []*mvs.Task) error {
				printTasks(out, tasks)
				return nil
			})
		},
	}
	rootCommand.AddCommand(tasksCommand)

	// 'regs' subcommand.
	regsCommand := &cobra.Command{
		Use:   "regs <asid>",
		Short: "Prints the registers of the tasks of an address space.",
		Long: `Prints the registers of the tasks of an address space.

By default the registers are recovered the way the dump service reports
them, from the TCB, the USTA, the linkage stack or the request block chain.
With --direct they are read from the TCB save area only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSpace(cmd, args[0], func(out *printer, space *image.Space, tasks []*mvs.Task) error {
				tasks, err := selectTasks(space, tasks)
				if err != nil {
					return err
				}
				return printRegisters(out, tasks, direct, raw)
			})
		},
	}
	regsCommand.Flags().StringVar(&tcbAddr, "tcb", "", "Only print the registers of the TCB at this address.")
	regsCommand.Flags().BoolVar(&direct, "direct", false, "Read the registers saved in the TCB.")
	regsCommand.Flags().BoolVar(&raw, "raw", false, "Dump the recovered register sets.")
	rootCommand.AddCommand(regsCommand)

	// 'lstack' subcommand.
	lstackCommand := &cobra.Command{
		Use:   "lstack <asid>",
		Short: "Prints the linkage stack of a task.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tcbAddr == "" {
				return errors.New("you must provide a TCB address with --tcb")
			}
			return withSpace(cmd, args[0], func(out *printer, space *image.Space, tasks []*mvs.Task) error {
				tasks, err := selectTasks(space, tasks)
				if err != nil {
					return err
				}
				return printLinkageStack(out, tasks[0], raw)
			})
		},
	}
	lstackCommand.Flags().StringVar(&tcbAddr, "tcb", "", "Address of the TCB.")
	lstackCommand.Flags().BoolVar(&raw, "raw", false, "Dump the decoded entries.")
	rootCommand.AddCommand(lstackCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			printVersion(cmd.OutOrStdout(), verbose)
		},
	}
	versionCommand.Flags().BoolP("verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	tcb		Log task enumeration and register recovery (default)
	image		Log manifest loading and the page cache
	config		Log configuration loading

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.

`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

// session is a dump opened by one command, with the tasks enumerated from
// it so far.
type session struct {
	dump  *image.Dump
	tasks *mvs.Registry
}

func (s *session) Close() error {
	return s.dump.Close()
}

// printVersion prints the release and revision of zdump. verbose adds the
// Go runtime, the control blocks zdump can decode and the linked modules.
func printVersion(w io.Writer, verbose bool) {
	v := version.ZdumpVersion
	fmt.Fprintf(w, "zdump %s\nBuild: %s\n", v, v.Revision())
	if !verbose {
		return
	}
	fmt.Fprintf(w, "Go: %s\n", runtime.Version())
	fmt.Fprintf(w, "Control blocks:\n")
	for _, t := range mvs.Layouts() {
		fmt.Fprintf(w, "  %-10s %#x bytes\n", t.Name, t.Length)
	}
	fmt.Fprintf(w, "Linkage stack entries: %s (%#x), %s (%#x)\n",
		mvs.LseState.Name, mvs.LseState.Length, mvs.LseState1.Name, mvs.LseState1.Length)
	mods := version.Modules()
	if mods == nil {
		fmt.Fprintf(w, "Modules: not built in module mode\n")
		return
	}
	fmt.Fprintf(w, "Modules:\n")
	for _, m := range mods {
		fmt.Fprintf(w, "  %s\n", m)
	}
}

// withDump sets up logging, opens the dump of the manifest and calls fn.
func withDump(cmd *cobra.Command, fn func(out *printer, s *session) error) error {
	lo := logOutput
	if log && lo == "" {
		lo = conf.LogOutput
	}
	if err := logflags.Setup(log, lo, logDest); err != nil {
		return err
	}
	defer logflags.Close()

	if manifest == "" {
		return errors.New("you must provide a dump manifest with --manifest")
	}
	d, err := image.LoadManifest(manifest, image.Options{CachePages: conf.PageCachePages})
	if err != nil {
		return err
	}
	s := &session{dump: d, tasks: mvs.NewRegistry()}
	defer s.Close()

	out, err := newPrinter(cmd.OutOrStdout(), color)
	if err != nil {
		return err
	}
	return fn(out, s)
}

// withSpace is withDump for commands operating on the tasks of one
// address space.
func withSpace(cmd *cobra.Command, asid string, fn func(out *printer, space *image.Space, tasks []*mvs.Task) error) error {
	return withDump(cmd, func(out *printer, s *session) error {
		space, err := s.dump.Space(asid)
		if err != nil {
			return err
		}
		tasks, err := s.tasks.Tasks(space)
		if err != nil {
			return err
		}
		return fn(out, space, tasks)
	})
}

// selectTasks returns the task named by --tcb, or all tasks when the flag
// is not set. A TCB that is not on the task queue can still be selected.
func selectTasks(space *image.Space, tasks []*mvs.Task) ([]*mvs.Task, error) {
	if tcbAddr == "" {
		return tasks, nil
	}
	addr, err := parseAddr(tcbAddr)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.Addr() == addr {
			return []*mvs.Task{t}, nil
		}
	}
	return []*mvs.Task{mvs.NewTask(space, addr)}, nil
}

// parseAddr parses a hexadecimal address, with or without a 0x prefix.
func parseAddr(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	addr, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return addr, nil
}

func printTasks(out *printer, tasks []*mvs.Task) {
	if len(tasks) == 0 {
		out.printf("no tasks\n")
		return
	}
	out.printf("%-10s %-10s %-10s %-10s %-10s\n", "TCB", "RBP", "STCB", "CELAP", "RTWA")
	for _, t := range tasks {
		out.printf("%s", out.title(fmt.Sprintf("%08x  ", t.Addr())))
		for _, f := range []func() (uint64, error){t.RBP, t.STCB, t.CELAP, t.RTWA} {
			v, err := f()
			if err != nil {
				out.printf(" %s", out.error("????????  "))
				continue
			}
			out.printf(" %08x  ", v)
		}
		out.printf("\n")
	}
}

// printRegisters prints the registers of every task. Failures are reported
// per task; errTasksFailed is returned if there was any.
func printRegisters(out *printer, tasks []*mvs.Task, direct, raw bool) error {
	if len(tasks) == 0 {
		out.printf("no tasks\n")
		return nil
	}
	failed := false
	for _, t := range tasks {
		var regs *mvs.RegisterSet
		var err error
		if direct {
			regs, err = t.Registers()
		} else {
			regs, err = t.ServiceRegisters()
		}
		out.printf("%s\n", out.title(t.String()))
		if err != nil {
			failed = true
			out.printf("%s\n\n", out.error(describeError(err)))
			continue
		}
		if raw {
			rawConfig.Fdump(out.w, regs)
		} else {
			out.printf("%s", regs)
		}
		out.printf("\n")
	}
	if failed {
		return errTasksFailed
	}
	return nil
}

// lseView is the decoded form of a linkage stack entry printed by
// lstack --raw.
type lseView struct {
	Index    int
	Addr     uint64
	Type     mvs.LseType
	PCNumber uint64
	PSW      uint64
	GPR      [16]uint64
}

func printLinkageStack(out *printer, t *mvs.Task, raw bool) error {
	stack, err := t.LinkageStack()
	if err != nil {
		return fmt.Errorf("%s: %s", t, describeError(err))
	}
	out.printf("%s\n", out.title(t.String()))
	if len(stack) == 0 {
		out.printf("linkage stack is empty\n")
		return nil
	}
	for i, e := range stack {
		v, err := decodeLse(i, e)
		if err != nil {
			return fmt.Errorf("entry %d at %#x: %s", i, e.Addr(), describeError(err))
		}
		if raw {
			rawConfig.Fdump(out.w, v)
			continue
		}
		out.printf("%3d %08x %-7s PSW %016x", v.Index, v.Addr, v.Type, v.PSW)
		if v.Type.IsPC() {
			out.printf(" PC %08x", v.PCNumber)
		}
		out.printf("\n")
	}
	return nil
}

func decodeLse(i int, e *mvs.Lse) (*lseView, error) {
	v := &lseView{Index: i, Addr: e.Addr()}
	var err error
	if v.Type, err = e.Type(); err != nil {
		return nil, err
	}
	if v.Type.IsPC() {
		if v.PCNumber, err = e.PCNumber(); err != nil {
			return nil, err
		}
	}
	if v.PSW, err = e.PSW(); err != nil {
		return nil, err
	}
	wide := e.Layout() == mvs.LseState1
	for r := range v.GPR {
		if wide {
			v.GPR[r], err = e.WideGPR(r)
		} else {
			v.GPR[r], err = e.GPR(r)
		}
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

// describeError prefixes err with the kind of failure.
func describeError(err error) string {
	var corrupt *mvs.CorruptDataError
	var unimpl *mvs.UnimplementedError
	var ioErr *mem.IOError
	switch {
	case errors.As(err, &corrupt):
		return "damaged control block: " + err.Error()
	case errors.As(err, &unimpl):
		return "unsupported: " + err.Error()
	case errors.As(err, &ioErr):
		return "memory not in dump: " + err.Error()
	}
	return err.Error()
}

// printer writes command output, colorizing titles and errors when
// enabled.
type printer struct {
	w     io.Writer
	color bool
}

const (
	ansiCyan  = "\x1b[36m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

func newPrinter(w io.Writer, mode string) (*printer, error) {
	p := &printer{w: w}
	switch mode {
	case "", config.ColorAuto:
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			p.color = true
		}
	case config.ColorAlways:
		p.color = true
	case config.ColorNever:
	default:
		return nil, fmt.Errorf("invalid color setting %q", mode)
	}
	if f, ok := w.(*os.File); ok && p.color && f == os.Stdout {
		p.w = colorable.NewColorableStdout()
	}
	return p, nil
}

func (p *printer) printf(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + ansiReset
}

func (p *printer) title(s string) string { return p.paint(ansiCyan, s) }

func (p *printer) error(s string) string { return p.paint(ansiRed, s) }
