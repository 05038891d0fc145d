package cmds

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/eclipse-openj9/openj9-sub015/pkg/config"
	"github.com/eclipse-openj9/openj9-sub015/pkg/image"
	"github.com/eclipse-openj9/openj9-sub015/pkg/mem"
	"github.com/eclipse-openj9/openj9-sub015/pkg/mvs"
	"github.com/eclipse-openj9/openj9-sub015/pkg/template"
)

type testDump []byte

func (d testDump) put32(t *template.Template, base uint64, field string, v uint32) {
	binary.BigEndian.PutUint32(d[t.Addr(base, field):], v)
}

func (d testDump) put64(t *template.Template, base uint64, field string, v uint64) {
	binary.BigEndian.PutUint64(d[t.Addr(base, field):], v)
}

// writeDump writes a 31-bit address space with two tasks and a manifest
// describing it, and returns the path of the manifest.
func writeDump(t *testing.T) string {
	d := make(testDump, 0x5000)
	d.put32(mvs.PSA, 0, "psaaold", 0x1000)
	d.put32(mvs.ASCB, 0x1000, "ascbasxb", 0x1200)
	d.put32(mvs.ASXB, 0x1200, "asxbftcb", 0x2000)
	d.put32(mvs.ASXB, 0x1200, "asxbltcb", 0x2200)
	d.put32(mvs.TCB, 0x2000, "tcbtcb", 0x2200)
	for i, tcb := range []uint64{0x2000, 0x2200} {
		rb := 0x3000 + uint64(i)*0x100
		d.put32(mvs.TCB, tcb, "tcbrbp", uint32(rb))
		d.put32(mvs.RB, rb, "rblink", uint32(tcb))
		d.put64(mvs.RB, rb, "rbopsw", 0x070c000080001000+uint64(i))
		for r := 0; r < 16; r++ {
			binary.BigEndian.PutUint32(d[mvs.TCB.Addr(tcb, "tcbgrs")+uint64(r)*4:], uint32((i+1)*0x100+r))
		}
	}

	// One BAKR entry on the linkage stack of the first task.
	d.put32(mvs.TCB, 0x2000, "tcbstcb", 0x4000)
	d.put32(mvs.STCB, 0x4000, "stcblsbt", 0x4400)
	d.put32(mvs.STCB, 0x4000, "stcblstp", 0x4400+uint32(mvs.LseState.Length))
	d[0x4401] = byte(mvs.LseBAKR)
	binary.BigEndian.PutUint16(d[0x4406:], uint16(mvs.LseState.Length))
	d.put64(mvs.LseState, 0x4400, "lsespsw", 0x070c000000002000)

	dir := t.TempDir()
	if err := ioutil.WriteFile(filepath.Join(dir, "asid1.bin"), d, 0644); err != nil {
		t.Fatal(err)
	}
	manifest := fmt.Sprintf(`spaces:
- id: "0001"
  root: "0001"
  regions:
  - file: asid1.bin
    addr: 0
    length: %d
`, len(d))
	path := filepath.Join(dir, "dump.yml")
	if err := ioutil.WriteFile(path, []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ZDUMP_CONFIG_DIR", t.TempDir())
	cmd := New(false)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(ioutil.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	manifest := writeDump(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"spaces", []string{"spaces"}, []string{"0001 31-bit"}},
		{"tasks", []string{"tasks", "0001"}, []string{"00002000", "00002200", "00003000", "00004000"}},
		{"regs", []string{"regs", "0001", "--direct"}, []string{
			"TCB 0x00002000", "PSW 070c000080001000 (from TCB)", "R0  00000100", "R15 0000010f",
			"TCB 0x00002200", "PSW 070c000080001001 (from TCB)", "R15 0000020f",
		}},
		{"regs one task", []string{"regs", "0001", "--direct", "--tcb", "2200"}, []string{"TCB 0x00002200", "R15 0000020f"}},
		{"regs raw", []string{"regs", "0001", "--direct", "--raw", "--tcb", "0x2000"}, []string{"(*mvs.RegisterSet)", "PSW: (uint64) 507780860133511168", `WhereFound: (string) (len=3) "TCB"`}},
		{"lstack", []string{"lstack", "0001", "--tcb", "2000"}, []string{"  0 00004400 BAKR    PSW 070c000000002000"}},
		{"lstack empty", []string{"lstack", "0001", "--tcb", "2200"}, []string{"linkage stack is empty"}},
		{"lstack raw", []string{"lstack", "0001", "--tcb", "2000", "--raw"}, []string{"(*cmds.lseView)", "Type: (mvs.LseType) 4", "PSW: (uint64) 507780857986031616"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"--manifest", manifest, "--color", "never"}, tc.args...)
			out, err := run(t, args...)
			if err != nil {
				t.Fatalf("unexpected error: %v\n%s", err, out)
			}
			for _, want := range tc.want {
				if !strings.Contains(out, want) {
					t.Errorf("output does not contain %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestCommandErrors(t *testing.T) {
	manifest := writeDump(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no manifest", []string{"tasks", "0001"}},
		{"unknown space", []string{"--manifest", manifest, "tasks", "0002"}},
		{"lstack without tcb", []string{"--manifest", manifest, "lstack", "0001"}},
		{"bad address", []string{"--manifest", manifest, "regs", "0001", "--tcb", "xyz"}},
		{"bad color", []string{"--manifest", manifest, "--color", "sometimes", "tasks", "0001"}},
		{"tcb outside dump", []string{"--manifest", manifest, "regs", "0001", "--direct", "--tcb", "900000"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := run(t, tc.args...); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "zdump 0.3.0\nBuild: ") || strings.Contains(out, "Control blocks") {
		t.Errorf("unexpected version output %q", out)
	}

	out, err = run(t, "version", "-v")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Go: go", "  TCB        0x160 bytes", "  USTA       0x90 bytes", "Linkage stack entries: LSESTATE (0xa8), LSESTATE1 (0x128)"} {
		if !strings.Contains(out, want) {
			t.Errorf("verbose version output does not contain %q:\n%s", want, out)
		}
	}
}

func TestSessionOwnsDump(t *testing.T) {
	manifest = writeDump(t)
	conf = &config.Config{}
	color = config.ColorNever
	log, logOutput, logDest = false, "", ""

	var tasks []*mvs.Task
	err := withSpace(&cobra.Command{}, "0001", func(out *printer, space *image.Space, got []*mvs.Task) error {
		tasks = got
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}

	// The dump is closed with the session: tasks kept past it fail to
	// read instead of faulting.
	_, err = tasks[1].Registers()
	var ioerr *mem.IOError
	if !errors.As(err, &ioerr) || !errors.Is(err, os.ErrClosed) {
		t.Fatalf("expected *mem.IOError wrapping os.ErrClosed, got %v", err)
	}
}

func TestParseAddr(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"2000", 0x2000, true},
		{"0x7f0a2000", 0x7f0a2000, true},
		{"0X10", 0x10, true},
		{"", 0, false},
		{"0xzz", 0, false},
	}
	for _, tc := range tests {
		got, err := parseAddr(tc.in)
		if (err == nil) != tc.ok {
			t.Errorf("parseAddr(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseAddr(%q) = %#x, want %#x", tc.in, got, tc.want)
		}
	}
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&mvs.CorruptDataError{Field: "lsednes", Value: 3}, "damaged control block: "},
		{&mvs.InternalError{Cause: &mvs.UnimplementedError{Variant: mvs.VariantOTCBFastPath}}, "unsupported: "},
		{&mvs.InternalError{Cause: &mem.IOError{Addr: 0x10, Size: 4, Err: errors.New("gap")}}, "memory not in dump: "},
		{errors.New("other"), "other"},
	}
	for _, tc := range tests {
		if got := describeError(tc.err); !strings.HasPrefix(got, tc.want) {
			t.Errorf("describeError(%v) = %q, want prefix %q", tc.err, got, tc.want)
		}
	}
}

func TestPrinterColor(t *testing.T) {
	var buf bytes.Buffer
	p, err := newPrinter(&buf, "always")
	if err != nil {
		t.Fatal(err)
	}
	if got := p.error("x"); got != ansiRed+"x"+ansiReset {
		t.Errorf("colorized error %q", got)
	}
	p, err = newPrinter(&buf, "")
	if err != nil {
		t.Fatal(err)
	}
	if got := p.title("x"); got != "x" {
		t.Errorf("buffer output should not be colorized, got %q", got)
	}
}
