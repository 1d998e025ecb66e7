// Package capture records probes and their replies to a pcap file.
package capture

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// SnapLen is the largest packet stored.
const SnapLen = 65535

// Writer appends raw IP packets to a pcap file. It is safe for concurrent
// use.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	w    *pcapgo.Writer
	n    int
}

// Create creates (or truncates) path and writes the pcap file header.
// Packets carry no link layer header (LINKTYPE_RAW).
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	buf := bufio.NewWriter(f)
	w := pcapgo.NewWriter(buf)
	if err := w.WriteFileHeader(SnapLen, layers.LinkTypeRaw); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}
	return &Writer{file: f, buf: buf, w: w}, nil
}

// WritePacket appends one packet captured at ts.
func (w *Writer) WritePacket(ts time.Time, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return os.ErrClosed
	}
	n := len(data)
	if n > SnapLen {
		data = data[:SnapLen]
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        n,
	}
	if err := w.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	w.n++
	return nil
}

// Count returns the number of packets written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	ferr := w.buf.Flush()
	cerr := w.file.Close()
	w.file = nil
	if ferr != nil {
		return ferr
	}
	return cerr
}
