package main

import (
	"flag"
	"fmt"
	"net/netip"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/uluyol/fabtrace/capture"
	"github.com/uluyol/fabtrace/gaps"
)

type cmdConfig struct {
	Filter struct {
		SrcIP   string `json:"srcIP"`
		SrcPort int    `json:"srcPort"`
		Layer   string `json:"layer"`
	} `json:"filter"`
	Cache struct {
		Dir         string `json:"dir"`
		Fingerprint bool   `json:"fingerprint"`
	} `json:"cache"`
	Gaps struct {
		Min     uint64 `json:"min"`
		Max     uint64 `json:"max"`
		Bins    int    `json:"bins"`
		Density bool   `json:"density"`
	} `json:"gaps"`
	LinkBps  float64 `json:"linkBps"`
	Progress string  `json:"progress"`
}

func defaultConfig() cmdConfig {
	var c cmdConfig
	c.Filter.SrcIP = "10.10.10.2"
	c.Filter.SrcPort = 4791
	c.Filter.Layer = "udp"
	c.Cache.Dir = "./cache"
	c.Gaps.Max = 20000
	c.Gaps.Bins = 20
	c.Gaps.Density = true
	c.LinkBps = 40e9
	c.Progress = "10s"
	return c
}

// loadConfig reads the config at path on top of the defaults. An empty
// path yields the defaults.
func loadConfig(path string) (*cmdConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return &cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open config: %v", err)
	}
	defer f.Close()

	dec := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %v", err)
	}
	return &cfg, nil
}

func (c *cmdConfig) filter() (capture.Filter, error) {
	var f capture.Filter
	if c.Filter.SrcIP != "" && c.Filter.SrcIP != "any" {
		ip, err := netip.ParseAddr(c.Filter.SrcIP)
		if err != nil {
			return f, fmt.Errorf("invalid source ip: %v", err)
		}
		f.SrcIP = ip
	}
	if c.Filter.SrcPort < 0 || c.Filter.SrcPort > 65535 {
		return f, fmt.Errorf("invalid source port: %d", c.Filter.SrcPort)
	}
	f.SrcPort = uint16(c.Filter.SrcPort)
	l, err := capture.ParseLayer(c.Filter.Layer)
	if err != nil {
		return f, err
	}
	f.Layer = l
	return f, nil
}

func (c *cmdConfig) gapConfig() gaps.Config {
	return gaps.Config{
		Window:  gaps.Window{Min: c.Gaps.Min, Max: c.Gaps.Max},
		Bins:    c.Gaps.Bins,
		Density: c.Gaps.Density,
	}
}

func (c *cmdConfig) progressPeriod() (time.Duration, error) {
	if c.Progress == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Progress)
	if err != nil {
		return 0, fmt.Errorf("invalid progress period: %v", err)
	}
	return d, nil
}

// configFlags are shared by the commands that read configuration. Flags
// that are set override the config file.
type configFlags struct {
	configPath string
	srcIP      string
	srcPort    int
	layer      string
	cacheDir   string
	harden     bool
}

func (f *configFlags) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "config file path (optional)")
	fs.StringVar(&f.srcIP, "src", "", "source ip to match (any to match all)")
	fs.IntVar(&f.srcPort, "sport", 0, "source port to match (0 to match all)")
	fs.StringVar(&f.layer, "layer", "", "protocol layer to match (any, ip, tcp, udp)")
	fs.StringVar(&f.cacheDir, "cache", "", "marker cache directory")
	fs.BoolVar(&f.harden, "fingerprint", false, "include capture size and mtime in cache keys")
}

func (f *configFlags) load(fs *flag.FlagSet) (*cmdConfig, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "src":
			cfg.Filter.SrcIP = f.srcIP
		case "sport":
			cfg.Filter.SrcPort = f.srcPort
		case "layer":
			cfg.Filter.Layer = f.layer
		case "cache":
			cfg.Cache.Dir = f.cacheDir
		case "fingerprint":
			cfg.Cache.Fingerprint = f.harden
		}
	})
	return cfg, nil
}
