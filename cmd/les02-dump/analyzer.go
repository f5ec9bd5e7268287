package main

import (
	"fmt"

	"les02bridge/internal/can"
)

// describeSample renders the decoded fields of a sample on one line
func describeSample(info *FrameInfo) string {
	if info.Kind == can.KindUnknown {
		return "unknown id, discarded"
	}
	if info.Err != nil {
		return fmt.Sprintf("⚠️ %v", info.Err)
	}

	switch s := info.Sample.(type) {
	case can.Position:
		return fmt.Sprintf("pos=%d", s.Raw)
	case can.Status:
		if s.FirmwareCRC != nil {
			return fmt.Sprintf("sub_status=0x%02X (boot) firmware_crc=0x%08X", s.SubStatus, *s.FirmwareCRC)
		}
		return fmt.Sprintf("sub_status=0x%02X", s.SubStatus)
	case can.Error:
		return fmt.Sprintf("code=0x%02X vendor=%X", s.Code, s.VendorContext)
	case can.System:
		if s.UnlockKey != nil {
			return fmt.Sprintf("sub_status=0x%02X (locked) unlock_key=0x%04X", s.SubStatus, *s.UnlockKey)
		}
		return fmt.Sprintf("sub_status=0x%02X", s.SubStatus)
	}
	return ""
}
