package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/Superstone-han/supertonic-v2/internal/audio"
	"github.com/Superstone-han/supertonic-v2/internal/config"
	"github.com/Superstone-han/supertonic-v2/internal/runtime"
	"github.com/Superstone-han/supertonic-v2/internal/synth"
	"github.com/Superstone-han/supertonic-v2/internal/textproc"
	"github.com/Superstone-han/supertonic-v2/internal/voice"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'say', 'inspect', 'voices' or 'version'")
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "say":
		err = runSay(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:], os.Stdout)
	case "voices":
		err = runVoices(os.Stdout)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type sayOptions struct {
	configPath string
	text       string
	lang       string
	voice      string
	out        string
	steps      int
	speed      float64
	batch      bool
	mode       string
	modelDir   string
	voicesDir  string
	seed       int64
	verbose    bool
}

func parseSay(args []string) (sayOptions, error) {
	var opts sayOptions
	fs := flag.NewFlagSet("say", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.text, "text", "", "Text to speak; '|' separates batch items with -batch")
	fs.StringVar(&opts.lang, "lang", "", "Language code (en, ko, es, pt, fr)")
	fs.StringVar(&opts.voice, "voice", "", "Voice id such as M3 or F1")
	fs.StringVar(&opts.out, "out", "out.wav", "Output WAV path; batch items get a numeric suffix")
	fs.IntVar(&opts.steps, "steps", 0, "Denoising steps (0 uses the configured default)")
	fs.Float64Var(&opts.speed, "speed", 1.0, "Speech rate multiplier")
	fs.BoolVar(&opts.batch, "batch", false, "Synthesize '|' separated texts in one batch without chunking")
	fs.StringVar(&opts.mode, "mode", "", "Engine mode override (mock or onnx)")
	fs.StringVar(&opts.modelDir, "model-dir", "", "Model directory override")
	fs.StringVar(&opts.voicesDir, "voices-dir", "", "Voice style directory override")
	fs.Int64Var(&opts.seed, "seed", 0, "Noise seed (0 is time based)")
	fs.BoolVar(&opts.verbose, "v", false, "Log progress to stderr")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.text == "" && fs.NArg() > 0 {
		opts.text = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(opts.text) == "" {
		return opts, errors.New("say: -text is required")
	}
	return opts, nil
}

func runSay(args []string) error {
	opts, err := parseSay(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.mode != "" {
		cfg.Engine.Mode = opts.mode
	}
	if opts.modelDir != "" {
		cfg.Engine.ModelDir = opts.modelDir
	}
	if opts.voicesDir != "" {
		cfg.Voices.Source = "file"
		cfg.Voices.Directory = opts.voicesDir
	}
	if opts.seed != 0 {
		cfg.Engine.Seed = opts.seed
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := runtime.OpenPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	if opts.batch {
		texts := strings.Split(opts.text, "|")
		results, err := pipeline.Engine.SynthesizeBatch(ctx, texts, opts.lang, opts.voice, opts.steps, opts.speed)
		if err != nil {
			return err
		}
		for i, res := range results {
			path := batchPath(opts.out, i)
			if err := writeResult(path, res); err != nil {
				return err
			}
			fmt.Printf("%s: %.2fs\n", path, res.Duration)
		}
		return nil
	}

	res, err := pipeline.Engine.Synthesize(ctx, synth.Request{
		Text:     opts.text,
		Language: opts.lang,
		Voice:    opts.voice,
		Steps:    opts.steps,
		Speed:    opts.speed,
		OnProgress: func(done, total int) {
			logger.Debug("chunk synthesized", slog.Int("done", done), slog.Int("total", total))
		},
	}, nil)
	if err != nil {
		return err
	}
	if err := writeResult(opts.out, res); err != nil {
		return err
	}
	fmt.Printf("%s: %.2fs in %d chunk(s)\n", opts.out, res.Duration, res.Chunks)
	return nil
}

func batchPath(out string, i int) string {
	ext := ".wav"
	base := strings.TrimSuffix(out, ext)
	return fmt.Sprintf("%s_%d%s", base, i+1, ext)
}

func writeResult(path string, res synth.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := audio.WriteWAV(f, res.Samples, res.SampleRate); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func runInspect(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("inspect: expected one or more WAV files")
	}
	for _, path := range fs.Args() {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		clip, err := audio.DecodeWAV(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		var peak float32
		for _, s := range clip.Samples {
			if s < 0 {
				s = -s
			}
			peak = max(peak, s)
		}
		fmt.Fprintf(w, "%s: %d Hz, %d ch, %d bit, %d samples, %.3fs, peak %.3f\n",
			path, clip.SampleRate, clip.Channels, clip.BitDepth, len(clip.Samples), clip.Duration(), peak)
	}
	return nil
}

func runVoices(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tGENDER\tDESCRIPTION")
	for _, v := range voice.Catalog() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID, v.Name, v.Gender, v.Description)
	}
	fmt.Fprintf(tw, "\nlanguages: %s\n", strings.Join(textproc.SupportedLanguages, ", "))
	return tw.Flush()
}
