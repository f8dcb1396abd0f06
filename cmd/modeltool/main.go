// modeltool is a CLI utility for inspecting unit models.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-models/internal/assets"
	"github.com/Faultbox/midgard-models/internal/config"
	"github.com/Faultbox/midgard-models/internal/engine/gpu"
	"github.com/Faultbox/midgard-models/internal/engine/loader"
	"github.com/Faultbox/midgard-models/internal/engine/model"
	"github.com/Faultbox/midgard-models/internal/engine/parsers"
	"github.com/Faultbox/midgard-models/internal/logger"
	"github.com/Faultbox/midgard-models/pkg/encoding"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "tree":
		cmdTree(args)
	case "dump":
		cmdDump(args)
	case "textures", "tex":
		cmdTextures(args)
	case "list", "ls":
		cmdList(args)
	case "exts":
		cmdExts(args)
	case "init-config":
		cmdInitConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`modeltool - unit model inspection utility

Usage:
  modeltool <command> [options]

Commands:
  info <model>          Show model dimensions and geometry counts
  tree <model>          Print the piece tree
  dump <model>          Dump the decoded model
  textures <model>      Check the textures a model references
  list [pattern]        List models the registered parsers can load
  exts                  List registered model extensions
  init-config <path>    Write the default configuration

Common options:
  -config <file>        Config file (models.grf_paths, models.search_paths)
  -grf a.grf,b.grf      GRF archives, replacing the configured ones
  -data dir1,dir2       Data directories, replacing the configured ones
  -v                    Debug logging

Examples:
  modeltool info -grf data.grf data/model/prontera/fountain.rsm
  modeltool tree -data ./assets props/crate.glb
  modeltool list -grf data.grf prontera`)
}

// env is the loader stack a command runs against. Realization uses the null
// realizer in immediate mode, so no GL context is needed.
type env struct {
	assets   *assets.Manager
	loader   *loader.Loader
	realizer *gpu.NullRealizer
	log      *zap.Logger
}

func newFlagSet(name string) (*flag.FlagSet, func() *env) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Config file")
	grfPaths := fs.String("grf", "", "Comma-separated GRF archives")
	dataDirs := fs.String("data", "", "Comma-separated data directories")
	verbose := fs.Bool("v", false, "Debug logging")

	return fs, func() *env {
		cfg, err := config.LoadFile(*configPath)
		if err != nil {
			fatal(err)
		}
		if *grfPaths != "" {
			cfg.Models.GRFPaths = splitList(*grfPaths)
		} else if *configPath == "" && *dataDirs != "" {
			cfg.Models.GRFPaths = nil
		}
		if *dataDirs != "" {
			cfg.Models.SearchPaths = splitList(*dataDirs)
		}

		level := "warn"
		if *verbose {
			level = "debug"
		}
		log, err := logger.New(level, logger.FileConfig{}, true)
		if err != nil {
			fatal(err)
		}

		src, err := assets.Open(cfg.Models.GRFPaths, cfg.Models.SearchPaths)
		if err != nil {
			fatal(err)
		}
		reg, err := parsers.NewRegistry(src)
		if err != nil {
			fatal(err)
		}

		realizer := gpu.NewNullRealizer()
		ld := loader.New(loader.Options{
			Registry: reg,
			GPU:      gpu.NewManager(gpu.Options{Mode: gpu.ModeImmediate, Realizer: realizer, Logger: log}),
			Logger:   log,
		})
		return &env{assets: src, loader: ld, realizer: realizer, log: log}
	}
}

func (e *env) close() {
	if err := e.loader.Close(); err != nil {
		e.log.Warn("closing loader", zap.Error(err))
	}
	if err := e.assets.Close(); err != nil {
		e.log.Warn("closing assets", zap.Error(err))
	}
	_ = e.log.Sync()
}

func (e *env) load(name string) *model.Model {
	m, err := e.loader.LoadModel(context.Background(), name, mgl32.Vec3{})
	if errors.Is(err, loader.ErrNoParser) {
		fmt.Fprintf(os.Stderr, "No parser for %s (known: %s)\n", name,
			strings.Join(e.loader.Registry().Extensions(), ", "))
		os.Exit(1)
	}
	if err != nil {
		fatal(err)
	}
	return m
}

func modelArg(fs *flag.FlagSet, args []string, usage string) {
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: modeltool "+usage)
		os.Exit(1)
	}
}

func cmdInfo(args []string) {
	fs, setup := newFlagSet("info")
	modelArg(fs, args, "info [options] <model>")
	e := setup()
	defer e.close()

	m := e.load(fs.Arg(0))
	faces, twoSided := model.CountFaces(m)

	triangles := 0
	m.Root.Walk(func(p *model.Piece) {
		triangles += e.realizer.Triangles(p.DrawList())
	})

	fmt.Printf("Model:     %s\n", encoding.Display(m.Name))
	fmt.Printf("Format:    %s\n", m.Type)
	fmt.Printf("Pieces:    %d\n", m.NumObjects)
	fmt.Printf("Faces:     %d (%d two-sided)\n", faces, twoSided)
	fmt.Printf("Triangles: %d drawn\n", triangles)
	fmt.Printf("Radius:    %.2f\n", m.Radius)
	fmt.Printf("Height:    %.2f\n", m.Height)
	fmt.Printf("Mins:      %v\n", m.Mins)
	fmt.Printf("Maxs:      %v\n", m.Maxs)
	fmt.Printf("Midpoint:  %v\n", m.RelMidPos)
	if len(m.Textures) > 0 {
		fmt.Println()
		fmt.Println("Textures:")
		for i, tex := range m.Textures {
			fmt.Printf("  %2d %s\n", i, encoding.Display(tex))
		}
	}
}

func cmdTree(args []string) {
	fs, setup := newFlagSet("tree")
	modelArg(fs, args, "tree [options] <model>")
	e := setup()
	defer e.close()

	m := e.load(fs.Arg(0))
	printPiece(m.Root, 0, 0)
}

func printPiece(p *model.Piece, depth, index int) int {
	flags := ""
	if p.IsEmpty {
		flags = " (empty)"
	}
	fmt.Printf("%s[%d] %s offset=%v faces=%d%s\n",
		strings.Repeat("  ", depth), index, encoding.Display(p.Name), p.Offset, len(p.Faces), flags)

	next := index + 1
	for _, c := range p.Children {
		next = printPiece(c, depth+1, next)
	}
	return next
}

func cmdDump(args []string) {
	fs, setup := newFlagSet("dump")
	depth := fs.Int("depth", 3, "Maximum nesting depth")
	modelArg(fs, args, "dump [options] <model>")
	e := setup()
	defer e.close()

	m := e.load(fs.Arg(0))
	cfg := spew.ConfigState{
		Indent:                  "  ",
		MaxDepth:                *depth,
		DisablePointerAddresses: true,
		DisableCapacities:       true,
		SortKeys:                true,
	}
	cfg.Dump(m)
}

func cmdTextures(args []string) {
	fs, setup := newFlagSet("textures")
	modelArg(fs, args, "textures [options] <model>")
	e := setup()
	defer e.close()

	m := e.load(fs.Arg(0))
	if len(m.Textures) == 0 {
		fmt.Println("(no textures)")
		return
	}

	missing := 0
	for i, tex := range m.Textures {
		p := assets.TexturePath(m.Name, tex, m.Type == model.TypeRSM)
		info, err := e.assets.TextureInfo(p)
		if err != nil {
			missing++
			fmt.Printf("  %2d %-40s %v\n", i, encoding.Display(p), err)
			continue
		}
		fmt.Printf("  %2d %-40s %s %dx%d\n", i, encoding.Display(p), info.Format, info.Width, info.Height)
	}
	if missing > 0 {
		fmt.Fprintf(os.Stderr, "\n%d of %d textures unavailable\n", missing, len(m.Textures))
		os.Exit(1)
	}
}

func cmdList(args []string) {
	fs, setup := newFlagSet("list")
	limit := fs.Int("n", 0, "Limit output to N models (0 = all)")
	fs.Parse(args)
	e := setup()
	defer e.close()

	names, err := e.assets.List(e.loader.Registry().Extensions()...)
	if err != nil {
		fatal(err)
	}

	pattern := ""
	if fs.NArg() > 0 {
		pattern = encoding.LowerASCII(fs.Arg(0))
	}

	count := 0
	for _, n := range names {
		shown := encoding.Display(n)
		if pattern != "" && !strings.Contains(encoding.LowerASCII(shown), pattern) {
			continue
		}
		fmt.Println(shown)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}
	fmt.Fprintf(os.Stderr, "\n(%d models)\n", count)
}

func cmdExts(args []string) {
	reg, err := parsers.NewRegistry(assets.NewManager())
	if err != nil {
		fatal(err)
	}
	for _, ext := range reg.Extensions() {
		p, _ := reg.Resolve(ext)
		fmt.Printf("%-6s %T\n", ext, p)
	}
}

func cmdInitConfig(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: modeltool init-config <path>")
		os.Exit(1)
	}
	if err := config.Default().SaveTo(args[0]); err != nil {
		fatal(err)
	}
	fmt.Printf("Wrote %s\n", args[0])
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
