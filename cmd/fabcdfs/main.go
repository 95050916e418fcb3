package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/uluyol/fabtrace/bench"
	"github.com/uluyol/fabtrace/cdf"
	"github.com/uluyol/hdrhist"
)

var (
	hdr     = flag.Bool("hdr", false, "output hdr histogram percentiles instead of the exact cdf")
	merge   = flag.Bool("merge", false, "with -hdr, merge points that have the same value in the cdf")
	mergeLs = flag.Bool("mergelogs", false, "output a single cdf over all logs")
	field   = flag.String("field", "size", "observation field to use (size or time)")
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: fabcdfs [flags] log[.gz]... > cdfs.csv")
	fmt.Fprintln(os.Stderr, "\nOUTPUT FORMAT")
	fmt.Fprintln(os.Stderr, "\t#start LogNum=N Log=PATH NumSamples=K")
	fmt.Fprintln(os.Stderr, "\tValue,CDF")
	fmt.Fprintln(os.Stderr, "\nWith -hdr, each line is LogNum,Percentile,Value.")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.SetPrefix("fabcdfs: ")
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}

	pick, err := picker(*field)
	if err != nil {
		log.Fatal(err)
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	var all []uint64
	for i, p := range flag.Args() {
		obs, err := bench.LoadObservations(nil, p)
		if err != nil {
			log.Fatal(err)
		}
		vals := make([]uint64, len(obs))
		for j := range obs {
			vals[j] = pick(obs[j])
		}
		if *mergeLs {
			all = append(all, vals...)
			continue
		}
		fmt.Fprintf(w, "#start LogNum=%d Log=%s NumSamples=%d\n", i, p, len(vals))
		if err := fprint(w, vals, i); err != nil {
			log.Fatalf("%s: %v", p, err)
		}
	}

	if *mergeLs {
		fmt.Fprintf(w, "#start LogNum=-1 NumSamples=%d\n", len(all))
		if err := fprint(w, all, -1); err != nil {
			log.Fatal(err)
		}
	}
}

func picker(name string) (func(bench.Observation) uint64, error) {
	switch name {
	case "size":
		return func(o bench.Observation) uint64 { return o.Size }, nil
	case "time":
		return func(o bench.Observation) uint64 { return o.SendTimeNanos }, nil
	}
	return nil, fmt.Errorf("unknown field %q", name)
}

func fprint(w io.Writer, vals []uint64, iter int) error {
	if *hdr {
		fprintHist(w, vals, *merge, iter)
		return nil
	}
	buckets, err := cdf.AggregateSizes(vals)
	if err != nil {
		return err
	}
	return cdf.SeriesOf(buckets).WriteCSV(w)
}

func fprintHist(w io.Writer, vals []uint64, mergeVals bool, iter int) {
	h := hdrhist.New(3)
	for _, v := range vals {
		h.Record(int64(v))
	}
	for _, cur := range h.AllVals() {
		if mergeVals {
			if cur.Count > 0 {
				fmt.Fprintf(w, "%d,%f,%d\n", iter, cur.Percentile, cur.Value)
			}
		} else {
			for n := int64(0); n < cur.Count; n++ {
				fmt.Fprintf(w, "%d,%f,%d\n", iter, cur.Percentile, cur.Value)
			}
		}
	}
}
