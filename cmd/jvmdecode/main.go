package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/daimatz/jvmcode/pkg/classfile"
	"github.com/daimatz/jvmcode/pkg/config"
	"github.com/daimatz/jvmcode/pkg/listing"
	"github.com/daimatz/jvmcode/pkg/loader"
	"github.com/daimatz/jvmcode/pkg/pipeline"

	_ "github.com/tliron/commonlog/simple"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: jvmdecode [flags] <file.class|file.jar>...\n\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	configDir := flag.String("config", ".", "directory to search upward for "+config.FileName)
	verbose := flag.Int("v", -1, "log verbosity (overrides output.verbosity)")
	format := flag.String("format", "", "output format: text or cbor (overrides output.format)")
	classPath := flag.String("cp", "", "extra class directories and jars, separated by "+string(os.PathListSeparator))
	jmod := flag.String("jmod", "", "path to java.base.jmod (overrides classpath.jmod)")
	method := flag.String("m", "", "only print methods with this name")
	resolve := flag.Bool("resolve", false, "resolve member references (overrides decode.resolve_members)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.FindAndLoad(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if *verbose >= 0 {
		cfg.Output.Verbosity = *verbose
	}
	if *format != "" {
		cfg.Output.Format = *format
	}
	if *jmod != "" {
		cfg.ClassPath.Jmod = *jmod
	}
	if *resolve {
		cfg.Decode.ResolveMembers = true
	}
	for _, p := range filepath.SplitList(*classPath) {
		if strings.HasSuffix(p, ".jar") {
			cfg.ClassPath.Jars = append(cfg.ClassPath.Jars, p)
		} else {
			cfg.ClassPath.Dirs = append(cfg.ClassPath.Dirs, p)
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	commonlog.Configure(cfg.Output.Verbosity, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	d := &decoder{cfg: cfg, out: os.Stdout, method: *method}
	if err := d.run(ctx, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if d.failed > 0 {
		os.Exit(1)
	}
}

type decoder struct {
	cfg    *config.Config
	out    io.Writer
	method string
	failed int
}

func (d *decoder) run(ctx context.Context, args []string) error {
	classes, err := readClasses(args)
	if err != nil {
		return err
	}

	opts := pipeline.Options{Workers: d.cfg.Decode.Workers, FailFast: d.cfg.Decode.FailFast}
	if d.cfg.Decode.ResolveMembers {
		own, err := loader.NewMemoryClassLoader(classes...)
		if err != nil {
			return err
		}
		opts.Loader = loader.Chain(own, d.cfg.ClassLoader())
	}

	for _, cf := range classes {
		result, err := pipeline.DecodeClass(ctx, cf, opts)
		if err != nil {
			return err
		}
		d.failed += len(result.Failed())
		if err := d.print(result); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) print(result *pipeline.ClassResult) error {
	if d.method != "" {
		var kept []pipeline.MethodResult
		for _, m := range result.Methods {
			if m.Method.Name == d.method {
				kept = append(kept, m)
			}
		}
		result = &pipeline.ClassResult{Name: result.Name, Methods: kept}
	}

	if d.cfg.Output.Format == config.FormatCBOR {
		data, err := listing.MarshalDocument(listing.NewDocument(result))
		if err != nil {
			return err
		}
		_, err = d.out.Write(data)
		return err
	}

	fmt.Fprintf(d.out, "class %s\n", result.Name)
	for _, m := range result.Methods {
		if m.Err != nil {
			fmt.Fprintf(d.out, "%s%s\n  error: %v\n", m.Method.Name, m.Method.Descriptor, m.Err)
			continue
		}
		if err := listing.WriteText(d.out, m.Body); err != nil {
			return err
		}
	}
	return nil
}

// readClasses parses each .class argument and every class in each .jar
// argument.
func readClasses(args []string) ([]*classfile.ClassFile, error) {
	var classes []*classfile.ClassFile
	for _, arg := range args {
		if !strings.HasSuffix(arg, ".jar") {
			cf, err := classfile.ParseFile(arg)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", arg, err)
			}
			classes = append(classes, cf)
			continue
		}
		jar := loader.NewJarClassLoader(arg)
		names, err := jar.ClassNames()
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			cf, err := jar.LoadClass(name)
			if err != nil {
				return nil, err
			}
			classes = append(classes, cf)
		}
	}
	return classes, nil
}
