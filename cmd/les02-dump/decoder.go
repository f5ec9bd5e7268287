package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"les02bridge/internal/event"
)

// printCBOR encodes env with the binary codec and walks the result
func printCBOR(env event.Envelope) error {
	data, err := event.CBOR.Encode(env)
	if err != nil {
		return err
	}
	var item interface{}
	if err := cbor.Unmarshal(data, &item); err != nil {
		return err
	}
	fmt.Printf("   Raw CBOR (%d bytes): %X\n", len(data), data)
	decodeAndPrint(item, 2)
	return nil
}

// decodeAndPrint recursively prints CBOR structures with indentation
func decodeAndPrint(item interface{}, indent int) {
	prefix := strings.Repeat("  ", indent)

	switch v := item.(type) {
	case []byte:
		fmt.Printf("%sByte String (%d bytes): %X\n", prefix, len(v), v)

	case string:
		fmt.Printf("%sText: %q\n", prefix, v)

	case []interface{}:
		fmt.Printf("%sArray (length %d)\n", prefix, len(v))
		for i, elem := range v {
			fmt.Printf("%s  [%d]:\n", prefix, i)
			decodeAndPrint(elem, indent+2)
		}

	case map[interface{}]interface{}:
		fmt.Printf("%sMap (%d entries)\n", prefix, len(v))
		for _, k := range sortedKeys(v) {
			fmt.Printf("%s  %v:\n", prefix, k)
			decodeAndPrint(v[k], indent+2)
		}

	case uint64:
		fmt.Printf("%sUnsigned Int: %d (0x%X)\n", prefix, v, v)

	case int64:
		fmt.Printf("%sSigned Int: %d\n", prefix, v)

	case float64:
		fmt.Printf("%sFloat: %f\n", prefix, v)

	case bool:
		fmt.Printf("%sBoolean: %v\n", prefix, v)

	case nil:
		fmt.Printf("%sNull\n", prefix)

	default:
		fmt.Printf("%s%T: %v\n", prefix, v, v)
	}
}

// sortedKeys orders map keys by their printed form so output is stable
func sortedKeys(m map[interface{}]interface{}) []interface{} {
	keys := make([]interface{}, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
	})
	return keys
}
