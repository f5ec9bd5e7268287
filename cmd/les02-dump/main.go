// Command les02-dump decodes a recorded LES02 capture (candump log or
// SavvyCAN CSV) from stdin the same way the listener does.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"les02bridge/internal/can"
	"les02bridge/internal/event"
)

func main() {
	groupByID := flag.Bool("group-by-id", false, "group frames by CAN ID, then sort by timestamp within each group")
	hideDiscarded := flag.Bool("hide-discarded", false, "hide frames the listener would discard")
	kindFilter := flag.String("kind", "", "only display frames of this kind (position, status, error, system, unknown)")
	asJSON := flag.Bool("json", false, "print the envelope each position frame produces instead of the frame")
	asCBOR := flag.Bool("cbor", false, "also print the CBOR encoding of each envelope")
	flag.Parse()

	var only *can.Kind
	if *kindFilter != "" {
		k, ok := can.ParseKind(*kindFilter)
		if !ok {
			log.Fatalf("unknown kind %q", *kindFilter)
		}
		only = &k
	}

	if !*asJSON {
		fmt.Println("LES02 CAN Capture Decoder")
		fmt.Println("Supports: candump format and CSV format (SavvyCAN)")
		fmt.Println("---------------------------------------------------")
	}

	replay := can.NewReplay(os.Stdin)
	stats := newSummary()
	var allFrames []*FrameInfo // For grouping mode
	enc := json.NewEncoder(os.Stdout)

	for seq := 1; ; seq++ {
		frame, err := replay.Receive()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatal(err)
		}

		info := &FrameInfo{Frame: frame, SequenceNum: seq}
		info.Channel, info.Kind = can.Classify(frame.ID)
		if info.Kind != can.KindUnknown {
			info.Sample, info.Err = can.Decode(info.Kind, frame.Len, frame.Data)
		}
		stats.add(info)

		env, ok := event.Envelope{}, false
		if info.Err == nil && info.Sample != nil {
			env, ok = event.Build(info.Channel, info.Sample, frame.ReceivedAt)
		}
		if ok {
			stats.envelopes++
		}

		if only != nil && info.Kind != *only {
			continue
		}
		if *hideDiscarded && info.Discarded() {
			continue
		}

		// Store frame info if grouping
		if *groupByID {
			allFrames = append(allFrames, info)
			continue
		}

		if *asJSON {
			if ok {
				if err := enc.Encode(env); err != nil {
					log.Fatal(err)
				}
			}
			continue
		}

		printFrameHeader(info)
		if ok && *asCBOR {
			if err := printCBOR(env); err != nil {
				fmt.Printf("   ⚠️ %v\n", err)
			}
		}
	}

	// Display grouped output if requested
	if *groupByID && len(allFrames) > 0 {
		displayGroupedFrames(allFrames, *hideDiscarded)
	}

	if !*asJSON {
		stats.print(replay.Skipped())
	}
}
