package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/c2h5oh/datasize"
	"github.com/google/subcommands"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/uluyol/fabtrace/bandwidth"
	"github.com/uluyol/fabtrace/bench"
	"github.com/uluyol/fabtrace/cdf"
	"github.com/uluyol/fabtrace/gaps"
	"github.com/uluyol/fabtrace/recorders"
)

const formatsDoc = `
CONFIG FORMAT
	The config file is a JSON file with the following schema.
	Every field is optional; the defaults are shown.
		{
			"filter": {
				"srcIP":   "10.10.10.2", // or "any"
				"srcPort": 4791,         // 0 matches any port
				"layer":   "udp"         // any, ip, tcp, udp
			},
			"cache": {
				"dir":         "./cache",
				"fingerprint": false // also key on capture size and mtime
			},
			"gaps": {
				"min":     0,
				"max":     20000, // exclusive, 0 for no bound
				"bins":    20,
				"density": true
			},
			"linkBps":  40e9,
			"progress": "10s" // time.Duration, "0s" disables
		}

	The -src, -sport, -layer, -cache and -fingerprint flags override the
	corresponding config values.

CAPTURES
	Classic pcap and pcapng files with Ethernet link types are accepted.
	For every packet that matches the filter, the 48-bit source MAC
	address is taken as its marker. Markers are cached per capture and
	filter in the cache dir as STEM_IP_PORT_LAYER[_FINGERPRINT]_mac.mkr.

	Without -fingerprint, a capture that is replaced by another file of
	the same name keeps using the old cache entry.

OBSERVATION LOGS
	The cdf and util commands read benchmark logs with one message per
	line:
		SIZE_BYTES,SEND_TIME_NANOS[,...]
	Fields may also be whitespace separated. Blank lines and lines
	starting with # are ignored. Logs ending in .gz are decompressed.

OUTPUT
	gaps writes, per capture, the histogram outline as x,y lines.
	cdf writes time,cdf lines, or "key count len prob" with -buckets.
`

type nopStop struct{}

func (nopStop) Stop() {}

type baseFlags struct {
	profPath string
	prof     string
	verbose  bool
}

func (f *baseFlags) setupProfiling() interface {
	Stop()
} {
	if f.profPath != "" {
		opts := []func(*profile.Profile){profile.ProfilePath(f.profPath)}
		switch f.prof {
		case "cpu":
			opts = append(opts, profile.CPUProfile)
		case "mem":
			opts = append(opts, profile.MemProfile)
		case "block":
			opts = append(opts, profile.BlockProfile)
		default:
			// ignore
		}
		return profile.Start(opts...)
	}
	return nopStop{}
}

func (f *baseFlags) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&f.profPath, "profiledir", "", "turn profiling on and write profiles to this directory")
	fs.StringVar(&f.prof, "profile", "cpu", "resource to profile (possible values: cpu, mem, block)")
	fs.BoolVar(&f.verbose, "v", false, "log debug messages")
}

func (f *baseFlags) logger(cmd string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if f.verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return l.WithField("cmd", cmd)
}

type formatsCmd struct{}

func (formatsCmd) Name() string           { return "formats" }
func (formatsCmd) Synopsis() string       { return "describes the config, input and output formats" }
func (formatsCmd) Usage() string          { return "" }
func (formatsCmd) SetFlags(*flag.FlagSet) {}

func (formatsCmd) Execute(_ context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	fmt.Fprint(os.Stderr, formatsDoc+"\n")
	return subcommands.ExitSuccess
}

type extractCmd struct {
	jobs int
	configFlags
	baseFlags
}

func (*extractCmd) Name() string     { return "extract" }
func (*extractCmd) Synopsis() string { return "extract markers from captures into the cache" }
func (*extractCmd) Usage() string    { return "fabtrace extract [flags] capture.pcap...\n" }

func (c *extractCmd) SetFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.jobs, "j", 2, "number of captures to read at once")
	c.configFlags.SetFlags(fs)
	c.baseFlags.SetFlags(fs)
}

func (c *extractCmd) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	defer c.setupProfiling().Stop()
	if fs.NArg() == 0 {
		log.Print("no captures given")
		return subcommands.ExitUsageError
	}
	cfg, err := c.configFlags.load(fs)
	if err != nil {
		log.Fatal(err)
	}
	p, err := newPipeline(cfg, c.logger("extract"), c.jobs)
	if err != nil {
		log.Fatal(err)
	}
	res, err := p.load(ctx, fs.Args())
	if err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}
	writeMarkerTable(os.Stdout, res)
	return subcommands.ExitSuccess
}

type gapsCmd struct {
	jobs        int
	out         string
	shared      bool
	min, max    uint64
	bins        int
	counts      bool
	sampleStart int
	sampleSize  int
	configFlags
	baseFlags
}

func (*gapsCmd) Name() string     { return "gaps" }
func (*gapsCmd) Synopsis() string { return "histogram the gaps between consecutive markers" }
func (*gapsCmd) Usage() string {
	return `fabtrace gaps [flags] capture.pcap...

Prints summary statistics of the gaps between sorted markers and writes the
histogram outline of each capture. With -shared, all captures are binned over
the same edges so they can be overlaid.

`
}

func (c *gapsCmd) SetFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.jobs, "j", 2, "number of captures to read at once")
	fs.StringVar(&c.out, "out", "", "directory for STEM_gaps.csv outputs (default: stdout)")
	fs.BoolVar(&c.shared, "shared", false, "bin all captures over the same edges")
	fs.Uint64Var(&c.min, "min", 0, "smallest gap to keep")
	fs.Uint64Var(&c.max, "max", 0, "keep gaps below this value (0 for no bound)")
	fs.IntVar(&c.bins, "bins", 0, "number of histogram bins")
	fs.BoolVar(&c.counts, "counts", false, "output counts instead of densities")
	fs.IntVar(&c.sampleStart, "samplestart", 0, "index of the first gap to print with -samplesize")
	fs.IntVar(&c.sampleSize, "samplesize", 0, "print this many raw gaps of each capture")
	c.configFlags.SetFlags(fs)
	c.baseFlags.SetFlags(fs)
}

func (c *gapsCmd) gapConfig(fs *flag.FlagSet, cfg *cmdConfig) gaps.Config {
	gc := cfg.gapConfig()
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "min":
			gc.Window.Min = c.min
		case "max":
			gc.Window.Max = c.max
		case "bins":
			gc.Bins = c.bins
		case "counts":
			gc.Density = !c.counts
		}
	})
	return gc
}

func (c *gapsCmd) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	defer c.setupProfiling().Stop()
	if fs.NArg() == 0 {
		log.Print("no captures given")
		return subcommands.ExitUsageError
	}
	cfg, err := c.configFlags.load(fs)
	if err != nil {
		log.Fatal(err)
	}
	gc := c.gapConfig(fs, cfg)
	logger := c.logger("gaps")
	p, err := newPipeline(cfg, logger, c.jobs)
	if err != nil {
		log.Fatal(err)
	}
	res, err := p.load(ctx, fs.Args())
	if err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}

	kept := make([][]uint64, len(res))
	for i, m := range markersOf(res) {
		kept[i] = gc.Window.Filter(gaps.Diffs(m))
	}

	var hists []gaps.Histogram
	if c.shared {
		hists, err = gaps.BinShared(kept, gc.Bins, gc.Density)
	} else {
		hists = make([]gaps.Histogram, len(kept))
		for i := range kept {
			if hists[i], err = gaps.Bin(kept[i], gc.Bins, gc.Density); err != nil {
				err = fmt.Errorf("%s: %w", res[i].path, err)
				break
			}
		}
	}
	if err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}

	if err := writeGapSummary(os.Stdout, res, kept, gc.Window); err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}

	if c.out == "" {
		w := bufio.NewWriter(os.Stdout)
		for i := range res {
			fmt.Fprintf(w, "#start %s\n", describe(&res[i]))
			writeStep(w, hists[i].Step())
			if c.sampleSize > 0 {
				writeSample(w, gaps.Sample(kept[i], c.sampleStart, c.sampleSize))
			}
		}
		if err := w.Flush(); err != nil {
			log.Fatal(err)
		}
		return subcommands.ExitSuccess
	}

	mw := recorders.NewMultiWriter(afero.NewOsFs(), c.out)
	for i := range res {
		step := hists[i].Step()
		mw.Write(res[i].stem()+"_gaps.csv", func(w io.Writer) error {
			return writeStep(w, step)
		})
		if c.sampleSize > 0 {
			sample := gaps.Sample(kept[i], c.sampleStart, c.sampleSize)
			mw.Write(res[i].stem()+"_sample.txt", func(w io.Writer) error {
				return writeSample(w, sample)
			})
		}
	}
	if err := mw.Err(); err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}
	logger.Printf("wrote %d histograms to %s", len(res), c.out)
	return subcommands.ExitSuccess
}

func writeStep(w io.Writer, s gaps.Step) error {
	for i := range s.X {
		if _, err := fmt.Fprintf(w, "%g,%g\n", s.X[i], s.Y[i]); err != nil {
			return err
		}
	}
	return nil
}

func writeSample(w io.Writer, sample []uint64) error {
	for _, g := range sample {
		if _, err := fmt.Fprintf(w, "#gap %d\n", g); err != nil {
			return err
		}
	}
	return nil
}

func writeGapSummary(w io.Writer, res []markerResult, kept [][]uint64, win gaps.Window) error {
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"Capture", "Gaps " + win.String(), "Mean", "Std", "Min", "Q1", "Median", "Q3", "Max", "IQR"})
	for i := range res {
		s, err := gaps.Summarize(kept[i])
		if err != nil {
			return fmt.Errorf("%s: %w", res[i].path, err)
		}
		f := func(v float64) string { return strconv.FormatFloat(v, 'g', 6, 64) }
		tbl.Append([]string{
			res[i].path, strconv.Itoa(s.Count),
			f(s.Mean), f(s.Std), f(s.Min), f(s.Q1), f(s.Median), f(s.Q3), f(s.Max), f(s.IQR),
		})
	}
	tbl.Render()
	return nil
}

type cdfCmd struct {
	out     string
	buckets bool
	baseFlags
}

func (*cdfCmd) Name() string     { return "cdf" }
func (*cdfCmd) Synopsis() string { return "compute the size distribution of observation logs" }
func (*cdfCmd) Usage() string    { return "fabtrace cdf [flags] log...\n" }

func (c *cdfCmd) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.out, "out", "", "output path, gzip compressed if it ends in .gz (default: stdout)")
	fs.BoolVar(&c.buckets, "buckets", false, "print the buckets instead of the cdf")
	c.baseFlags.SetFlags(fs)
}

func (c *cdfCmd) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	defer c.setupProfiling().Stop()
	if fs.NArg() == 0 {
		log.Print("no logs given")
		return subcommands.ExitUsageError
	}
	logger := c.logger("cdf")

	var obs []bench.Observation
	for _, p := range fs.Args() {
		o, err := bench.LoadObservations(nil, p)
		if err != nil {
			log.Fatal(err)
		}
		logger.Printf("%s: %d observations", p, len(o))
		obs = append(obs, o...)
	}

	buckets, err := cdf.Aggregate(obs)
	if err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}
	write := func(w io.Writer) error {
		if c.buckets {
			return cdf.WriteBuckets(w, buckets)
		}
		return cdf.SeriesOf(buckets).WriteCSV(w)
	}

	if c.out == "" {
		err = write(os.Stdout)
	} else {
		err = recorders.WriteFileAtomic(afero.NewOsFs(), c.out, write)
	}
	if err != nil {
		log.Print(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type utilCmd struct {
	configPath string
	linkBps    float64
	baseFlags
}

func (*utilCmd) Name() string     { return "util" }
func (*utilCmd) Synopsis() string { return "estimate link utilization from observation logs" }
func (*utilCmd) Usage() string    { return "fabtrace util [flags] log...\n" }

func (c *utilCmd) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "config file path (optional)")
	fs.Float64Var(&c.linkBps, "link", 0, "link capacity in bits per second (overrides config)")
	c.baseFlags.SetFlags(fs)
}

func (c *utilCmd) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	defer c.setupProfiling().Stop()
	if fs.NArg() == 0 {
		log.Print("no logs given")
		return subcommands.ExitUsageError
	}
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		log.Fatal(err)
	}
	link := cfg.LinkBps
	if c.linkBps != 0 {
		link = c.linkBps
	}

	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.SetHeader([]string{"Log", "Messages", "Bytes", "Seconds", "Bps", "Utilization"})
	for _, p := range fs.Args() {
		obs, err := bench.LoadObservations(nil, p)
		if err != nil {
			log.Fatal(err)
		}
		var bytes uint64
		for _, o := range obs {
			bytes += o.Size
		}
		r, err := bandwidth.Estimate(bandwidth.FromObservations(obs), link)
		if err != nil {
			log.Printf("%s: %v", p, err)
			return subcommands.ExitFailure
		}
		tbl.Append([]string{
			filepath.Base(p),
			strconv.Itoa(len(obs)),
			datasize.ByteSize(bytes).HumanReadable(),
			strconv.FormatFloat(r.TotalSeconds, 'g', 6, 64),
			strconv.FormatFloat(r.ActualBps, 'g', 6, 64),
			strconv.FormatFloat(r.Utilization, 'f', 3, 64) + "%",
		})
	}
	tbl.Render()
	return subcommands.ExitSuccess
}

func main() {
	log.SetPrefix("fabtrace: ")
	log.SetFlags(0)
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(formatsCmd{}, "")
	subcommands.Register(new(extractCmd), "")
	subcommands.Register(new(gapsCmd), "")
	subcommands.Register(new(cdfCmd), "")
	subcommands.Register(new(utilCmd), "")

	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(int(subcommands.Execute(ctx)))
}
