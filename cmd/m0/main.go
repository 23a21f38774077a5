// m0 CLI - loads chunk images and runs, disassembles, debugs or serves them
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/m0/manifest"
	"github.com/chazu/m0/pkg/bytecode"
	"github.com/chazu/m0/server"
	"github.com/chazu/m0/store"
	"github.com/chazu/m0/vm"
)

var log = commonlog.GetLogger("m0.cmd")

// options holds the parsed command line.
type options struct {
	config  string
	verbose int
	trace   bool
	entry   string
	debug   bool
	serve   bool
	addr    string
	store   string
	imprt   bool
	disasm  bool
	images  []string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("m0", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.config, "config", "", "Path to m0.toml (default: search upward from the working directory)")
	fs.IntVar(&o.verbose, "v", 0, "Log verbosity (overrides [log] verbosity)")
	fs.BoolVar(&o.trace, "trace", false, "Log every executed instruction")
	fs.StringVar(&o.entry, "entry", "", "Chunk to start in (default: [vm] entry, then the first chunk loaded)")
	fs.BoolVar(&o.debug, "debug", false, "Start the interactive debugger")
	fs.BoolVar(&o.serve, "serve", false, "Start the remote debug service")
	fs.StringVar(&o.addr, "addr", "", "Debug service address (default: [debug] listen)")
	fs.StringVar(&o.store, "store", "", "SQLite chunk store (default: [chunks] store)")
	fs.BoolVar(&o.imprt, "import", false, "Copy the loaded images into the chunk store and exit")
	fs.BoolVar(&o.disasm, "disasm", false, "Disassemble every loaded chunk and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: m0 [options] [images...]\n\n")
		fmt.Fprintf(stderr, "Loads chunk images and runs the entry chunk.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  m0 prog.m0c                     # Run prog.m0c\n")
		fmt.Fprintf(stderr, "  m0 -disasm prog.m0c             # List its chunks\n")
		fmt.Fprintf(stderr, "  m0 -debug prog.m0c              # Step through it\n")
		fmt.Fprintf(stderr, "  m0 -store lib.db -import *.m0c  # Save chunks for later runs\n")
		fmt.Fprintf(stderr, "  m0 -store lib.db -serve         # Serve stored chunks to remote debuggers\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.images = fs.Args()
	return o, nil
}

// run is main without the process exit, so it can be tested.
func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := loadConfig(o.config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	verbosity := cfg.Log.Verbosity
	if o.verbose != 0 {
		verbosity = o.verbose
	}
	commonlog.Configure(verbosity, cfg.LogPath())

	storePath := o.store
	if storePath == "" {
		storePath = cfg.StorePath()
	}
	images := append(cfg.ImagePaths(), o.images...)

	chunks, err := readImages(images)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if o.imprt {
		if err := importChunks(storePath, chunks); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Imported %d chunk(s) into %s\n", len(chunks), storePath)
		return 0
	}

	reg := vm.NewRegistry()
	if err := reg.AddAll(chunks); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if storePath != "" {
		if err := loadStore(storePath, reg); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	if o.disasm {
		for _, c := range reg.Chunks() {
			fmt.Fprintln(stdout, c.Disassemble())
		}
		return 0
	}

	trace := o.trace || cfg.VM.Trace

	if o.serve {
		addr := o.addr
		if addr == "" {
			addr = cfg.Debug.Listen
		}
		srv := server.New(reg,
			server.WithSessionTTL(cfg.Debug.SessionTTL),
			server.WithTrace(trace),
		)
		defer srv.Stop()
		if err := srv.ListenAndServe(addr); err != nil {
			fmt.Fprintf(stderr, "Server error: %v\n", err)
			return 1
		}
		return 0
	}

	entry := o.entry
	if entry == "" {
		entry = cfg.VM.Entry
	}
	if entry == "" {
		first := reg.First()
		if first == nil {
			fmt.Fprintf(stderr, "Error: no chunks loaded (run 'm0 -h' for usage)\n")
			return 1
		}
		entry = first.Name
	}

	interp := vm.New(reg, vm.WithStdout(stdout), vm.WithTrace(trace))
	frame, err := interp.NewFrame(entry, 0)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := applyRegisters(frame, cfg.VM.Registers); err != nil {
		fmt.Fprintf(stderr, "Error: [vm.registers] %v\n", err)
		return 1
	}

	if o.debug {
		return runDebugger(vm.NewDebugger(interp, frame), stdout)
	}

	log.Debugf("running %s from %d chunk(s)", entry, reg.Len())
	return exitCode(interp.Run(frame), stderr)
}

// loadConfig loads an explicit config file, or searches upward from the
// working directory, falling back to defaults.
func loadConfig(path string) (*manifest.Config, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	cfg, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return manifest.Default(), nil
	}
	return cfg, nil
}

func readImages(paths []string) ([]*bytecode.Chunk, error) {
	var chunks []*bytecode.Chunk
	for _, path := range paths {
		cs, err := bytecode.ReadImageFile(path)
		if err != nil {
			return nil, err
		}
		log.Debugf("read %d chunk(s) from %s", len(cs), path)
		chunks = append(chunks, cs...)
	}
	return chunks, nil
}

func importChunks(storePath string, chunks []*bytecode.Chunk) error {
	if storePath == "" {
		return fmt.Errorf("-import needs a chunk store (-store or [chunks] store)")
	}
	st, err := store.Open(storePath)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.PutAll(chunks...)
}

// loadStore adds stored chunks to reg. Chunks already loaded from images
// take precedence over stored chunks of the same name.
func loadStore(storePath string, reg *vm.Registry) error {
	st, err := store.Open(storePath)
	if err != nil {
		return err
	}
	defer st.Close()
	_, err = st.LoadMissing(reg)
	return err
}

// applyRegisters seeds a frame with initial register values.
func applyRegisters(f *vm.Frame, values map[string]string) error {
	for name, value := range values {
		r, err := vm.ParseRegRef(name)
		if err != nil {
			return err
		}
		if err := f.Assign(r, value); err != nil {
			return err
		}
	}
	return nil
}

// exitCode maps a run result to the process exit status.
func exitCode(r vm.Result, stderr io.Writer) int {
	switch r.Status {
	case vm.Terminated:
		return r.ExitCode
	case vm.Faulted:
		fmt.Fprintf(stderr, "Error: %v\n", r.Fault)
		return 1
	default:
		return 0
	}
}
