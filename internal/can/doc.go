// Package can reads LES02 encoder frames from a CAN bus or a recorded
// capture and decodes them into typed samples.
//
// The LES02 transmits every message twice, once per redundant channel:
// an even arbitration id is the Master channel, id+1 the Slave channel.
//
//	0x10/0x11  System    DLC 8
//	0x20/0x21  Error     DLC 8
//	0x30/0x31  Status    DLC 8
//	0x80/0x81  Position  DLC 4
package can
