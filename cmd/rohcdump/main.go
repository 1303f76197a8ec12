// Command rohcdump reads a sequence of length-prefixed ROHC packets from
// a file or stdin and prints the reconstructed IP headers, mirroring how
// cmd/decode_aprs takes a captured protocol frame and runs it through a
// decoder.
package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/openrohc/rohc/rohc"
)

var log = logrus.New()

func main() {
	var (
		configPath = flag.StringP("config", "c", "", "path to a channel config YAML file (defaults built in if empty)")
		input      = flag.StringP("input", "i", "-", "file to read length-prefixed ROHC packets from, or - for stdin")
		recordPTY  = flag.Bool("record-pty", false, "additionally mirror every reconstructed header line to a pseudo-terminal for live monitoring")
	)
	flag.Parse()

	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := rohc.DefaultConfig()
	if *configPath != "" {
		loaded, err := rohc.LoadConfigFile(*configPath)
		if err != nil {
			log.WithError(err).Fatal("loading config")
		}
		cfg = loaded
	}

	engine, err := rohc.NewEngine(cfg)
	if err != nil {
		log.WithError(err).Fatal("constructing engine")
	}

	var mirror io.Writer
	if *recordPTY {
		ptmx, pts, err := pty.Open()
		if err != nil {
			log.WithError(err).Fatal("opening pseudo-terminal for --record-pty")
		}
		defer ptmx.Close()
		defer pts.Close()
		log.WithField("slave", pts.Name()).Info("record-pty: attach a terminal here to follow reconstructed headers live")
		mirror = ptmx
	}

	r := os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			log.WithError(err).Fatal("opening input")
		}
		defer f.Close()
		r = f
	}

	if err := run(engine, r, mirror, log); err != nil {
		log.WithError(err).Fatal("dump failed")
	}
}

// run drains length-prefixed (uint32 big-endian length, then payload)
// ROHC packets from r, decoding each through engine and printing the
// reconstruction; a decode error is logged but does not abort the
// stream, since a corrupted or out-of-order capture still has useful
// packets after the bad one.
func run(engine *rohc.Engine, r io.Reader, mirror io.Writer, log *logrus.Logger) error {
	var lenBuf [4]byte
	n := 0
	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading length prefix: %w", err)
		}
		length := binary.BigEndian.Uint32(lenBuf[:])
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("reading packet %d: %w", n, err)
		}
		n++

		rp, err := engine.Decompress(buf, time.Now())
		if err != nil {
			log.WithFields(logrus.Fields{"packet": n, "kind": kindOf(err)}).Warn(err)
			continue
		}

		line := formatPacket(rp)
		fmt.Println(line)
		if mirror != nil {
			fmt.Fprintln(mirror, line)
		}
	}
}

func kindOf(err error) string {
	var re *rohc.Error
	if errors.As(err, &re) {
		return re.Kind.String()
	}
	return "unknown"
}

func formatPacket(rp *rohc.ReconstructedPacket) string {
	s := fmt.Sprintf("sn=%d", rp.SN)
	if rp.Outer.V4 != nil {
		s += fmt.Sprintf(" outer=%s->%s proto=%d id=%d",
			ipString(rp.Outer.V4.SrcAddr[:]), ipString(rp.Outer.V4.DstAddr[:]), rp.Outer.V4.Protocol, rp.Outer.V4.Identification)
	} else if rp.Outer.V6 != nil {
		s += fmt.Sprintf(" outer=%s->%s nh=%d", ip6String(rp.Outer.V6.SrcAddr[:]), ip6String(rp.Outer.V6.DstAddr[:]), rp.Outer.V6.NextHeader)
	}
	if rp.Inner != nil {
		if rp.Inner.V4 != nil {
			s += fmt.Sprintf(" inner=%s->%s", ipString(rp.Inner.V4.SrcAddr[:]), ipString(rp.Inner.V4.DstAddr[:]))
		} else if rp.Inner.V6 != nil {
			s += fmt.Sprintf(" inner=%s->%s", ip6String(rp.Inner.V6.SrcAddr[:]), ip6String(rp.Inner.V6.DstAddr[:]))
		}
	}
	if rp.UDP != nil {
		s += fmt.Sprintf(" udp=%d->%d", rp.UDP.SrcPort, rp.UDP.DstPort)
	}
	if rp.RTP != nil {
		s += fmt.Sprintf(" rtp_seq=%d rtp_ssrc=%08x", rp.RTP.SequenceNumber, rp.RTP.SSRC)
	}
	return s
}

func ipString(b []byte) string {
	if len(b) != 4 {
		return "?"
	}
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

func ip6String(b []byte) string {
	if len(b) != 16 {
		return "?"
	}
	return fmt.Sprintf("%x:%x:%x:%x:%x:%x:%x:%x",
		uint16(b[0])<<8|uint16(b[1]), uint16(b[2])<<8|uint16(b[3]),
		uint16(b[4])<<8|uint16(b[5]), uint16(b[6])<<8|uint16(b[7]),
		uint16(b[8])<<8|uint16(b[9]), uint16(b[10])<<8|uint16(b[11]),
		uint16(b[12])<<8|uint16(b[13]), uint16(b[14])<<8|uint16(b[15]))
}
