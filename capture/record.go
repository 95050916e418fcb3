package capture

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Markers is the sequence of source hardware addresses of matching
// packets, in capture order.
type Markers []uint64

// Layer is the highest protocol layer a filter requires.
type Layer uint8

const (
	LayerAny Layer = iota
	LayerIP
	LayerTCP
	LayerUDP
)

func (l Layer) String() string {
	switch l {
	case LayerAny:
		return "any"
	case LayerIP:
		return "ip"
	case LayerTCP:
		return "tcp"
	case LayerUDP:
		return "udp"
	}
	return fmt.Sprintf("unknown(%d)", uint8(l))
}

func ParseLayer(raw string) (Layer, error) {
	switch strings.ToLower(raw) {
	case "", "any":
		return LayerAny, nil
	case "ip":
		return LayerIP, nil
	case "tcp":
		return LayerTCP, nil
	case "udp":
		return LayerUDP, nil
	}
	return LayerAny, fmt.Errorf("unknown protocol layer: %s", raw)
}

// PacketRecord is the view of a decoded frame that filters see.
type PacketRecord interface {
	SourceAddress48() uint64
	SourceIP() (netip.Addr, bool)
	SourcePort() (uint16, bool)
	ProtocolLayer() Layer
	RawLength() int
}

// MAC48 packs a hardware address into the low 48 bits of a uint64.
func MAC48(hw net.HardwareAddr) uint64 {
	var v uint64
	for _, b := range hw {
		v = v<<8 | uint64(b)
	}
	return v & (1<<48 - 1)
}

// frame is reused across packets by a frameDecoder.
type frame struct {
	srcMAC  uint64
	srcIP   netip.Addr
	srcPort uint16
	layer   Layer
	hasIP   bool
	hasPort bool
	length  int
}

func (f *frame) SourceAddress48() uint64      { return f.srcMAC }
func (f *frame) SourceIP() (netip.Addr, bool) { return f.srcIP, f.hasIP }
func (f *frame) SourcePort() (uint16, bool)   { return f.srcPort, f.hasPort }
func (f *frame) ProtocolLayer() Layer         { return f.layer }
func (f *frame) RawLength() int               { return f.length }

type frameDecoder struct {
	eth     layers.Ethernet
	vlan    layers.Dot1Q
	ip4     layers.IPv4
	ip6     layers.IPv6
	tcp     layers.TCP
	udp     layers.UDP
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
	cur     frame
}

func newFrameDecoder() *frameDecoder {
	d := &frameDecoder{decoded: make([]gopacket.LayerType, 0, 4)}
	d.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet,
		&d.eth, &d.vlan, &d.ip4, &d.ip6, &d.tcp, &d.udp)
	d.parser.IgnoreUnsupported = true
	return d
}

// decode fills the decoder's frame. The returned record is only valid
// until the next call.
//
// A frame whose inner layers fail to decode still yields a record holding
// the layers that did decode. Only a frame without an Ethernet header is an
// error.
func (d *frameDecoder) decode(data []byte) (PacketRecord, error) {
	d.cur = frame{length: len(data)}
	err := d.parser.DecodeLayers(data, &d.decoded)
	hasEth := false
	for _, lt := range d.decoded {
		switch lt {
		case layers.LayerTypeEthernet:
			d.cur.srcMAC = MAC48(d.eth.SrcMAC)
			hasEth = true
		case layers.LayerTypeIPv4:
			d.cur.srcIP, d.cur.hasIP = netip.AddrFromSlice(d.ip4.SrcIP.To4())
			d.cur.layer = LayerIP
		case layers.LayerTypeIPv6:
			d.cur.srcIP, d.cur.hasIP = netip.AddrFromSlice(d.ip6.SrcIP)
			d.cur.layer = LayerIP
		case layers.LayerTypeTCP:
			d.cur.srcPort, d.cur.hasPort = uint16(d.tcp.SrcPort), true
			d.cur.layer = LayerTCP
		case layers.LayerTypeUDP:
			d.cur.srcPort, d.cur.hasPort = uint16(d.udp.SrcPort), true
			d.cur.layer = LayerUDP
		}
	}
	if !hasEth {
		if err == nil {
			err = fmt.Errorf("no ethernet header in %d byte frame", len(data))
		}
		return &d.cur, err
	}
	return &d.cur, nil
}

// Filter selects the packets that contribute markers. Zero fields match
// anything.
type Filter struct {
	SrcIP   netip.Addr
	SrcPort uint16
	Layer   Layer
}

func (f Filter) String() string {
	ip := "any"
	if f.SrcIP.IsValid() {
		ip = f.SrcIP.String()
	}
	port := "any"
	if f.SrcPort != 0 {
		port = fmt.Sprint(f.SrcPort)
	}
	return fmt.Sprintf("src=%s sport=%s layer=%s", ip, port, f.Layer)
}

func (f Filter) Match(r PacketRecord) bool {
	switch f.Layer {
	case LayerIP:
		if r.ProtocolLayer() < LayerIP {
			return false
		}
	case LayerTCP, LayerUDP:
		if r.ProtocolLayer() != f.Layer {
			return false
		}
	}
	if f.SrcIP.IsValid() {
		ip, ok := r.SourceIP()
		if !ok || ip.Unmap() != f.SrcIP.Unmap() {
			return false
		}
	}
	if f.SrcPort != 0 {
		port, ok := r.SourcePort()
		if !ok || port != f.SrcPort {
			return false
		}
	}
	return true
}
