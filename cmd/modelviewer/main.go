// modelviewer loads unit models from GRF archives or data directories and
// shows them side by side in an orbiting window.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-models/internal/assets"
	"github.com/Faultbox/midgard-models/internal/config"
	"github.com/Faultbox/midgard-models/internal/debugserver"
	"github.com/Faultbox/midgard-models/internal/engine/camera"
	"github.com/Faultbox/midgard-models/internal/engine/gpu"
	"github.com/Faultbox/midgard-models/internal/engine/gpu/glrealizer"
	"github.com/Faultbox/midgard-models/internal/engine/input"
	"github.com/Faultbox/midgard-models/internal/engine/loader"
	"github.com/Faultbox/midgard-models/internal/engine/lod"
	"github.com/Faultbox/midgard-models/internal/engine/parsers"
	"github.com/Faultbox/midgard-models/internal/engine/picking"
	"github.com/Faultbox/midgard-models/internal/engine/scene"
	"github.com/Faultbox/midgard-models/internal/engine/window"
	"github.com/Faultbox/midgard-models/internal/game/world"
	"github.com/Faultbox/midgard-models/internal/logger"
	"github.com/Faultbox/midgard-models/internal/metrics"
)

var (
	flagLimit   = flag.Int("limit", 64, "Maximum number of models listed from the sources when none are named")
	flagSpacing = flag.Float64("spacing", 40, "Distance between placed models")
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log.Info("=== Midgard Model Viewer ===")
	log.Sugar().Debugf("Config: %+v", cfg)

	if err := run(cfg, log); err != nil {
		log.Error("viewer error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("viewer closed normally")
}

func run(cfg *config.Config, log *zap.Logger) error {
	mode, err := cfg.Models.Mode()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	win, err := window.New(window.Config{
		Title:      "Midgard Model Viewer",
		Width:      cfg.Graphics.Width,
		Height:     cfg.Graphics.Height,
		Fullscreen: cfg.Graphics.Fullscreen,
		VSync:      cfg.Graphics.VSync,
	}, log)
	if err != nil {
		return err
	}
	defer win.Close()

	src, err := assets.Open(cfg.Models.GRFPaths, cfg.Models.SearchPaths)
	if err != nil {
		return err
	}
	defer src.Close()
	log.Info("asset sources opened", zap.Strings("sources", src.Sources()))

	parserReg, err := parsers.NewRegistry(src)
	if err != nil {
		return err
	}

	realizer := glrealizer.New()
	defer realizer.Destroy()

	ld := loader.New(loader.Options{
		Registry: parserReg,
		GPU: gpu.NewManager(gpu.Options{
			Mode:     mode,
			Realizer: realizer,
			Logger:   log,
			Metrics:  m,
		}),
		LowDetail: lod.NewGenerator(log),
		Logger:    log,
		Metrics:   m,
	})
	defer func() {
		if err := ld.Close(); err != nil {
			log.Warn("closing loader", zap.Error(err))
		}
	}()

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           debugserver.New(debugserver.Options{Loader: ld, Gatherer: reg, Logger: log}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("debug server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("debug server failed", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	names, err := modelNames(cfg, src, parserReg.Extensions())
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errors.New("no models to show: name some, configure models.preload or add a source holding models")
	}

	// Immediate mode realizes on the loading goroutine, so it has to be this one.
	workers := cfg.Models.Workers
	if mode == gpu.ModeImmediate {
		workers = 0
	}
	w := world.New(world.Options{
		Loader:  ld,
		Workers: workers,
		CenterOffset: func(name string) mgl32.Vec3 {
			return cfg.Models.CenterOffset(name)
		},
		Logger: log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	spawns := world.GridLayout(names, float32(*flagSpacing))
	populated := make(chan struct{})
	populate := func() {
		defer close(populated)
		added, err := w.Populate(ctx, spawns)
		if err != nil {
			log.Warn("some models failed to load", zap.Error(err))
		}
		log.Info("models placed", zap.Int("units", added), zap.Int("requested", len(spawns)))
	}
	if mode == gpu.ModeDeferred {
		go populate()
	} else {
		populate()
	}
	defer func() {
		cancel()
		<-populated
	}()

	renderer, err := scene.NewRenderer(scene.DefaultConfig(), realizer)
	if err != nil {
		return err
	}
	defer renderer.Destroy()

	return loop(loopState{
		cfg:       cfg,
		log:       log,
		win:       win,
		in:        input.New(),
		cam:       camera.NewOrbitCamera(),
		ld:        ld,
		world:     w,
		renderer:  renderer,
		populated: populated,
	})
}

// modelNames picks the models to show: command-line arguments, then the
// configured preload list, then whatever the sources hold.
func modelNames(cfg *config.Config, src *assets.Manager, exts []string) ([]string, error) {
	if args := flag.Args(); len(args) > 0 {
		return args, nil
	}
	if len(cfg.Models.Preload) > 0 {
		return cfg.Models.Preload, nil
	}
	names, err := src.List(exts...)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	if *flagLimit > 0 && len(names) > *flagLimit {
		names = names[:*flagLimit]
	}
	return names, nil
}

type loopState struct {
	cfg       *config.Config
	log       *zap.Logger
	win       *window.Window
	in        *input.Input
	cam       *camera.OrbitCamera
	ld        *loader.Loader
	world     *world.World
	renderer  *scene.Renderer
	populated <-chan struct{}
}

func loop(s loopState) error {
	renderCtx := gpu.WithRenderThread(context.Background())

	var frameBudget time.Duration
	if s.cfg.Graphics.FPSLimit > 0 {
		frameBudget = time.Second / time.Duration(s.cfg.Graphics.FPSLimit)
	}

	rotate := true
	fitted := false
	selected := ""
	last := time.Now()
	lastTitle := last
	frames := 0

	for {
		frameStart := time.Now()
		dt := float32(frameStart.Sub(last).Seconds())
		last = frameStart

		f := s.in.Update()
		if f.Quit {
			return nil
		}
		if f.Resized {
			s.win.Resize(f.Width, f.Height)
		}
		if f.ToggleRotate {
			rotate = !rotate
		}
		if f.ToggleCull {
			s.log.Info("back-face culling", zap.Bool("enabled", s.renderer.ToggleCulling()))
		}
		if f.DragX != 0 || f.DragY != 0 {
			s.cam.HandleDrag(f.DragX, f.DragY)
		}
		if f.Wheel != 0 {
			s.cam.HandleZoom(f.Wheel)
		}

		stats, err := s.ld.Update(renderCtx)
		if err != nil {
			return err
		}

		// refit while models keep arriving, and once more when loading ends
		select {
		case <-s.populated:
			if !fitted || f.Refit {
				s.cam.FitToBounds(s.world.Bounds())
				fitted = true
			}
		default:
			if stats.Fixed > 0 || f.Refit {
				s.cam.FitToBounds(s.world.Bounds())
			}
		}
		if rotate {
			s.cam.RotationY += 0.4 * dt
		}

		width, height := s.win.Size()
		viewProj := s.cam.ViewProjection(width, height)
		units := s.world.Units().AllVisible()
		if f.Pick {
			ray := picking.ScreenToRay(f.PickX, f.PickY, float32(width), float32(height), viewProj)
			if u := picking.PickUnit(ray, units); u != nil {
				selected = u.Name + ": " + u.Model().Name
				s.log.Info("unit selected",
					zap.Uint32("id", u.ID),
					zap.String("unit", u.Name),
					zap.String("model", u.Model().Name),
					zap.Int("pieces", u.Model().NumObjects),
				)
			} else {
				selected = ""
			}
		}
		drawn := s.renderer.Render(viewProj, units)
		s.win.SwapBuffers()

		frames++
		if since := frameStart.Sub(lastTitle); since >= time.Second {
			fps := float64(frames) / since.Seconds()
			title := fmt.Sprintf("Midgard Model Viewer - %d models, %d units, %d pieces drawn - %.0f FPS",
				s.ld.Len(), s.world.Units().Count(), drawn, fps)
			if selected != "" {
				title += " - " + selected
			}
			s.win.SetTitle(title)
			frames = 0
			lastTitle = frameStart
		}

		if frameBudget > 0 {
			if rest := frameBudget - time.Since(frameStart); rest > 0 {
				time.Sleep(rest)
			}
		}
	}
}
