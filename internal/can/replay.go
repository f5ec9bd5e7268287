package can

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Format of a recorded capture.
type Format int

const (
	FormatAuto Format = iota
	FormatCandump
	FormatCSV
)

// Replay reads frames from a candump log or a SavvyCAN CSV export.
type Replay struct {
	scanner *bufio.Scanner
	closer  io.Closer
	format  Format
	pace    bool
	clock   clock.Clock
	log     *zap.Logger

	lineNum  int
	lastTS   time.Time
	skipped  atomic.Int64
	done     chan struct{}
	closeOne sync.Once
}

// ReplayOption configures a Replay.
type ReplayOption func(*Replay)

// WithPacing sleeps between frames so they are emitted with the recorded gaps.
func WithPacing(c clock.Clock) ReplayOption {
	return func(r *Replay) {
		r.pace = true
		r.clock = c
	}
}

// WithReplayLogger reports unparseable lines at debug level.
func WithReplayLogger(log *zap.Logger) ReplayOption {
	return func(r *Replay) { r.log = log }
}

// WithFormat skips format detection.
func WithFormat(f Format) ReplayOption {
	return func(r *Replay) { r.format = f }
}

// NewReplay wraps r. If r is an io.Closer it is closed by Close.
func NewReplay(r io.Reader, opts ...ReplayOption) *Replay {
	rp := &Replay{
		scanner: bufio.NewScanner(r),
		clock:   clock.New(),
		log:     zap.NewNop(),
		done:    make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		rp.closer = c
	}
	for _, opt := range opts {
		opt(rp)
	}
	return rp
}

// Skipped returns how many non-empty lines could not be parsed.
func (r *Replay) Skipped() int64 { return r.skipped.Load() }

// Receive returns the next frame from the capture.
func (r *Replay) Receive() (Frame, error) {
	for {
		select {
		case <-r.done:
			return Frame{}, ErrClosed
		default:
		}

		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				select {
				case <-r.done:
					return Frame{}, ErrClosed
				default:
				}
				return Frame{}, err
			}
			return Frame{}, io.EOF
		}
		line := r.scanner.Text()
		r.lineNum++

		if strings.TrimSpace(line) == "" {
			continue
		}

		// Detect format on first data line
		if r.format == FormatAuto {
			if strings.Contains(line, "Time Stamp") || strings.Contains(line, "ID,Extended") {
				r.format = FormatCSV
				continue // Skip header
			}
			if strings.Contains(line, "#") {
				r.format = FormatCandump
			} else if strings.Contains(line, ",") {
				r.format = FormatCSV
			}
		}

		var (
			f   Frame
			err error
		)
		if r.format == FormatCSV {
			if strings.HasPrefix(line, "Time Stamp") {
				continue
			}
			f, err = parseCSVLine(strings.Split(line, ","))
		} else {
			f, err = parseCandumpLine(line)
		}
		if err != nil {
			r.skipped.Add(1)
			r.log.Debug("skipping unparseable line", zap.Int("line", r.lineNum), zap.Error(err))
			continue
		}

		if f.ReceivedAt.IsZero() {
			f.ReceivedAt = r.clock.Now()
		}
		if err := r.wait(f.ReceivedAt); err != nil {
			return Frame{}, err
		}
		return f, nil
	}
}

func (r *Replay) wait(ts time.Time) error {
	prev := r.lastTS
	r.lastTS = ts
	if !r.pace || prev.IsZero() {
		return nil
	}
	gap := ts.Sub(prev)
	if gap <= 0 {
		return nil
	}
	select {
	case <-r.clock.After(gap):
		return nil
	case <-r.done:
		return ErrClosed
	}
}

// Close stops the replay and closes the underlying reader.
func (r *Replay) Close() error {
	var err error
	r.closeOne.Do(func() {
		close(r.done)
		if r.closer != nil {
			err = r.closer.Close()
		}
	})
	return err
}

// parseCSVLine parses a CSV line in the format:
// Time Stamp,ID,Extended,Dir,Bus,LEN,D1,D2,D3,D4,D5,D6,D7,D8
// Time stamps are in microseconds.
func parseCSVLine(fields []string) (Frame, error) {
	if len(fields) < 6 {
		return Frame{}, fmt.Errorf("not enough fields: got %d, need at least 6", len(fields))
	}

	if strings.ToLower(strings.TrimSpace(fields[2])) == "true" {
		return Frame{}, fmt.Errorf("extended id not supported")
	}

	id, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 16, 16)
	if err != nil || id > MaxID {
		return Frame{}, fmt.Errorf("invalid id %q", fields[1])
	}

	length, err := strconv.Atoi(strings.TrimSpace(fields[5]))
	if err != nil || length < 0 || length > 8 {
		return Frame{}, fmt.Errorf("invalid length %q", fields[5])
	}
	if len(fields) < 6+length {
		return Frame{}, fmt.Errorf("not enough data fields for length %d", length)
	}

	// Parse Data bytes (D1-D8)
	data := make([]byte, 0, length)
	for i := 0; i < length; i++ {
		b, err := strconv.ParseUint(strings.TrimSpace(fields[6+i]), 16, 8)
		if err != nil {
			return Frame{}, fmt.Errorf("invalid data byte D%d: %v", i+1, err)
		}
		data = append(data, byte(b))
	}

	var ts time.Time
	if us, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64); err == nil {
		ts = time.UnixMicro(us)
	}

	return NewFrame(uint16(id), data, ts), nil
}

// parseCandumpLine extracts CAN ID and payload from candump format
// Format: (timestamp) interface ID#PAYLOAD
func parseCandumpLine(line string) (Frame, error) {
	// Find the '#' separator
	idxHash := strings.Index(line, "#")
	if idxHash == -1 {
		return Frame{}, fmt.Errorf("no # separator found")
	}

	ts, _ := parseTimestamp(line)

	// Extract ID part (everything before #)
	idPart := strings.TrimSpace(line[:idxHash])

	// Remove timestamps like (1234.567890)
	if idx := strings.LastIndex(idPart, ")"); idx != -1 {
		idPart = idPart[idx+1:]
	}
	idPart = strings.TrimSpace(idPart)

	// Remove interface name (vcan0, can0, etc.)
	if idx := strings.LastIndex(idPart, " "); idx != -1 {
		idPart = idPart[idx+1:]
	}

	canID := strings.TrimSpace(idPart)
	if len(canID) > 3 {
		return Frame{}, fmt.Errorf("extended id %s not supported", canID)
	}
	id, err := strconv.ParseUint(canID, 16, 16)
	if err != nil || id > MaxID {
		return Frame{}, fmt.Errorf("invalid id %q", canID)
	}

	// Extract and decode payload (everything after #)
	payloadHex := strings.ReplaceAll(line[idxHash+1:], " ", "")
	if strings.HasPrefix(payloadHex, "R") {
		return Frame{}, fmt.Errorf("remote frame")
	}

	payload, err := hex.DecodeString(payloadHex)
	if err != nil {
		return Frame{}, err
	}
	if len(payload) > 8 {
		return Frame{}, fmt.Errorf("payload too long: %d bytes", len(payload))
	}

	return NewFrame(uint16(id), payload, ts), nil
}

// parseTimestamp extracts the (seconds.fraction) prefix of a candump line.
func parseTimestamp(line string) (time.Time, error) {
	start := strings.Index(line, "(")
	end := strings.Index(line, ")")
	if start == -1 || end == -1 || start >= end {
		return time.Time{}, fmt.Errorf("could not parse timestamp")
	}
	secs, err := strconv.ParseFloat(line[start+1:end], 64)
	if err != nil {
		return time.Time{}, err
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(math.Round(frac*1e6))*1e3), nil
}
