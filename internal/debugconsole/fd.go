package debugconsole

import "github.com/otley-systems/gekko/internal/addr"

func toAddr(phys uint32) addr.Address { return addr.Address(phys) }
