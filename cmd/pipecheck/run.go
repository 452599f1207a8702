package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/gogpu/pipecheck"
	"github.com/gogpu/pipecheck/backend"
	"github.com/gogpu/pipecheck/gpucore"
)

type runFlags struct {
	backend  string
	space    string
	output   string
	format   string
	tonemap  string
	quality  float64
	exposure float64
	delta    bool
	amp      float64
	linked   bool
	jobs     int
	maxDim   int
	x, y     int
	timeout  time.Duration
	out      string
}

func parseTonemap(name string) (pipecheck.TonemapOp, error) {
	for op := pipecheck.TonemapOp(0); op.Valid(); op++ {
		if strings.EqualFold(op.String(), name) {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown tonemap %q", name)
}

func (f *runFlags) settings() (pipecheck.Settings, error) {
	s := pipecheck.DefaultSettings()
	var err error
	if s.BCFormat, err = pipecheck.ParseBCFormat(f.format); err != nil {
		return s, err
	}
	if s.OutputSpace, err = pipecheck.ParseColorSpace(f.output); err != nil {
		return s, err
	}
	if s.Tonemap, err = parseTonemap(f.tonemap); err != nil {
		return s, err
	}
	s.BCQuality = float32(f.quality)
	s.Exposure = float32(f.exposure)
	s.DeltaEnabled = f.delta
	s.DeltaAmplification = float32(f.amp)
	return s, s.Validate()
}

func runCmd(args []string) error {
	var f runFlags
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.StringVar(&f.backend, "backend", "", "backend to open (default: best available)")
	fs.StringVar(&f.space, "space", "srgb", "input color space of the images")
	fs.StringVar(&f.output, "output", "srgb", "output color space")
	fs.StringVar(&f.format, "format", "bc7", "block compression format")
	fs.StringVar(&f.tonemap, "tonemap", pipecheck.TonemapNone.String(), "RRT tonemap operator")
	fs.Float64Var(&f.quality, "quality", 0.5, "BC encoder quality in [0, 1]")
	fs.Float64Var(&f.exposure, "exposure", 0, "grading exposure in stops")
	fs.BoolVar(&f.delta, "delta", false, "render the BC delta view")
	fs.Float64Var(&f.amp, "amp", 10, "delta amplification")
	fs.BoolVar(&f.linked, "linked", false, "link settings across all images")
	fs.IntVar(&f.jobs, "j", 0, "images processed at once (default: GOMAXPROCS)")
	fs.IntVar(&f.maxDim, "max", 2048, "downscale images larger than this (0 keeps the size)")
	fs.IntVar(&f.x, "x", -1, "inspected pixel x (default: center)")
	fs.IntVar(&f.y, "y", -1, "inspected pixel y (default: center)")
	fs.DurationVar(&f.timeout, "timeout", 5*time.Second, "readback timeout")
	fs.StringVar(&f.out, "out", "", "write the final display of each image to this PNG path")
	verbose := verboseFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	installLogger(*verbose)
	if fs.NArg() == 0 {
		return errors.New("run: no images given")
	}
	inSpace, err := pipecheck.ParseColorSpace(f.space)
	if err != nil {
		return err
	}
	settings, err := f.settings()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var dev gpucore.Device
	if f.backend == "" {
		dev, err = backend.Default()
	} else {
		dev, err = backend.Open(f.backend)
	}
	if err != nil {
		return err
	}
	defer dev.Close()

	m, err := pipecheck.NewManager(dev,
		pipecheck.WithLinked(f.linked),
		pipecheck.WithConcurrency(f.jobs),
		pipecheck.WithInstanceOptions(
			pipecheck.WithSettings(settings),
			pipecheck.WithReadbackTimeout(f.timeout),
		))
	if err != nil {
		return err
	}
	defer m.Close()

	paths := fs.Args()
	for _, path := range paths {
		pix, w, h, err := loadImage(path, f.maxDim)
		if err != nil {
			return err
		}
		_, inst, err := m.Add(pipecheck.WithLabel(filepath.Base(path)))
		if err != nil {
			return err
		}
		if err := inst.SetSource(pix, uint32(w), uint32(h), inSpace); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := m.RefreshAll(ctx); err != nil {
		return err
	}
	// Stage failures are bypassed; report them but keep going.
	if err := m.RenderAll(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "pipecheck: render:", err)
	}

	fmt.Printf("backend %s\n", dev.Name())
	for n, id := range m.Instances() {
		inst, _ := m.Get(id)
		if err := report(ctx, inst, &f); err != nil {
			return fmt.Errorf("%s: %w", inst.Label(), err)
		}
		if f.out != "" {
			if err := writeFinal(ctx, dev, inst, outPath(f.out, n, len(paths))); err != nil {
				return err
			}
		}
	}
	return nil
}

func report(ctx context.Context, inst *pipecheck.Instance, f *runFlags) error {
	w, h := inst.Size()
	x, y := f.x, f.y
	if x < 0 {
		x = int(w) / 2
	}
	if y < 0 {
		y = int(h) / 2
	}
	fmt.Printf("\n%s (%dx%d, %s)\n", inst.Label(), w, h, inst.InputSpace())
	if msg := inst.CapabilityMessage(); msg != "" {
		fmt.Println("  " + msg)
	}
	for _, st := range inst.Stages() {
		if !st.Available {
			fmt.Printf("  %d %-14s unavailable\n", st.Index, st.Name)
			continue
		}
		px, status, err := inst.ReadPixel(ctx, st.Index, x, y)
		if err != nil {
			return err
		}
		if status != pipecheck.ReadOK {
			fmt.Printf("  %d %-14s %s\n", st.Index, st.Name, status)
			continue
		}
		fmt.Printf("  %d %-14s %-10s (%d,%d) = %.5f %.5f %.5f %.5f\n",
			st.Index, st.Name, st.Output, x, y, px[0], px[1], px[2], px[3])
	}

	res := inst.BCResult()
	if res == nil {
		return nil
	}
	fmt.Printf("  %s %dx%d blocks, %d bytes, effective input %s\n",
		res.Format, res.BlocksPerRow, res.Height/4, len(res.Data), inst.EffectiveInputSpace())
	m, err := inst.Metrics(ctx)
	if errors.Is(err, pipecheck.ErrNoBCResult) {
		return nil
	}
	if err != nil {
		return err
	}
	for c, name := range []string{"R", "G", "B", "A"} {
		fmt.Printf("  %s  mse %.3g  psnr %s  max %.4g\n", name,
			m.Channels[c].MSE, dB(m.Channels[c].PSNR), m.Channels[c].MaxError)
	}
	fmt.Printf("  RGB mse %.3g  psnr %s  max %.4g\n", m.RGB.MSE, dB(m.RGB.PSNR), m.RGB.MaxError)
	return nil
}

func dB(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f dB", v)
}

func outPath(base string, n, total int) string {
	if total == 1 {
		return base
	}
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, ext), n+1, ext)
}

func writeFinal(ctx context.Context, dev gpucore.Device, inst *pipecheck.Instance, path string) error {
	tex, err := inst.StageOutput(int(pipecheck.StageFinalDisplay))
	if err != nil {
		return err
	}
	w, h := inst.Size()
	pix, err := dev.ReadTexture(ctx, tex, 0, 0, w, h)
	if err != nil {
		return fmt.Errorf("read final display: %w", err)
	}
	if err := savePNG(path, pix, int(w), int(h)); err != nil {
		return err
	}
	fmt.Printf("  wrote %s\n", path)
	return nil
}
