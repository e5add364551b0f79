package pescan

import "fmt"

var machine_names = map[uint16]string{
	0x014c: "I386",
	0x01c0: "ARM",
	0x01c4: "ARMNT",
	0x0200: "IA64",
	0x5064: "RISCV64",
	0x8664: "AMD64",
	0xaa64: "ARM64",
}

func machineName(machine uint16) string {
	name, pres := machine_names[machine]
	if !pres {
		return fmt.Sprintf("UNKNOWN(%#x)", machine)
	}
	return name
}

func CapUint16(v uint16, max uint16) uint16 {
	if v > max {
		return max
	}
	return v
}

func CapUint32(v uint32, max uint32) uint32 {
	if v > max {
		return max
	}
	return v
}
