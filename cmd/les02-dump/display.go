package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"les02bridge/internal/can"
)

// printFrameHeader prints a formatted frame line with metadata
func printFrameHeader(info *FrameInfo) {
	marker := "📍"
	if info.Discarded() {
		marker = "🗑️"
	}
	fmt.Printf("%s ID:0x%03X [%s/%s] Data[%d]: %X  %s\n",
		marker, info.Frame.ID, strings.ToUpper(info.Kind.String()), info.Channel,
		info.Frame.Len, info.Frame.Data, describeSample(info))
}

// displayGroupedFrames displays frames grouped by CAN ID and sorted by timestamp
func displayGroupedFrames(frames []*FrameInfo, hideDiscarded bool) {
	// Group frames by CAN ID
	grouped := make(map[uint16][]*FrameInfo)
	for _, f := range frames {
		grouped[f.Frame.ID] = append(grouped[f.Frame.ID], f)
	}

	// Get sorted list of IDs
	var ids []uint16
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fmt.Println("\n===================================================")
	fmt.Println("📋 FRAMES GROUPED BY CAN ID")
	fmt.Println("===================================================")

	for _, id := range ids {
		frameList := grouped[id]

		// Sort by timestamp within each group
		sort.Slice(frameList, func(i, j int) bool {
			ti, tj := frameList[i].Frame.ReceivedAt, frameList[j].Frame.ReceivedAt
			if ti.Equal(tj) {
				// If timestamps are equal, sort by sequence number to maintain order
				return frameList[i].SequenceNum < frameList[j].SequenceNum
			}
			return ti.Before(tj)
		})

		var filteredFrames []*FrameInfo
		for _, f := range frameList {
			if hideDiscarded && f.Discarded() {
				continue
			}
			filteredFrames = append(filteredFrames, f)
		}

		if len(filteredFrames) == 0 {
			continue
		}

		_, kind := can.Classify(id)
		fmt.Printf("\n🔖 CAN ID: 0x%03X %s (%d frames)\n", id, kind, len(filteredFrames))
		fmt.Println(strings.Repeat("-", 60))

		for _, f := range filteredFrames {
			tsStr := strconv.FormatFloat(f.Timestamp(), 'f', 6, 64)
			fmt.Printf("  [%s #%d] ", tsStr, f.SequenceNum)
			printFrameHeader(f)
		}
	}

	fmt.Println("\n===================================================")
}

// summary accumulates capture statistics
type summary struct {
	minTS, maxTS float64
	started      bool
	total        int
	byKind       map[can.Kind]int
	discarded    int
	envelopes    int
}

func newSummary() *summary {
	return &summary{byKind: make(map[can.Kind]int)}
}

func (s *summary) add(info *FrameInfo) {
	s.total++
	if info.Discarded() {
		s.discarded++
	} else {
		s.byKind[info.Kind]++
	}

	ts := info.Timestamp()
	if !s.started || ts < s.minTS {
		s.minTS = ts
	}
	if !s.started || ts > s.maxTS {
		s.maxTS = ts
	}
	s.started = true
}

func (s *summary) print(skippedLines int64) {
	fmt.Println("\n===================================================")
	fmt.Printf("📊 Capture Summary\n")
	if s.started && s.maxTS > s.minTS {
		duration := s.maxTS - s.minTS
		fmt.Printf("   Duration: %s (%.3f sec)\n", formatDuration(duration), duration)
		fmt.Printf("   From: %.6f to %.6f seconds\n", s.minTS, s.maxTS)
	}
	for _, k := range []can.Kind{can.KindPosition, can.KindStatus, can.KindError, can.KindSystem} {
		fmt.Printf("   %-8s frames: %d\n", k, s.byKind[k])
	}
	fmt.Printf("   Envelopes emitted: %d\n", s.envelopes)
	fmt.Printf("   Discarded frames: %d\n", s.discarded)
	fmt.Printf("   Unparseable lines: %d\n", skippedLines)
	fmt.Printf("   Total Frames Processed: %d\n", s.total)
	fmt.Println("===================================================")
}

// formatDuration formats a duration in seconds to a human-readable string
func formatDuration(seconds float64) string {
	if seconds < 1 {
		return fmt.Sprintf("%.2f ms", seconds*1000)
	}
	if seconds < 60 {
		return fmt.Sprintf("%.2f sec", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		secs := int(seconds) % 60
		return fmt.Sprintf("%d min %d sec", int(minutes), secs)
	}

	hours := minutes / 60
	mins := int(minutes) % 60
	return fmt.Sprintf("%d hour %d min", int(hours), mins)
}
