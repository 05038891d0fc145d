package mvs

import "github.com/eclipse-openj9/openj9-sub015/pkg/template"

// Control block layouts. Field names follow the assembler mapping macros;
// 31-bit pointers are fullwords.

// PSA is the prefixed save area, mapped at address 0 of every space.
var PSA = template.New("PSA", 0x2000,
	template.U("flccvt", 0x10, 4),
	template.U("psaaold", 0x224, 4),
)

// CVT is the communications vector table.
var CVT = template.New("CVT", 0x500,
	template.W("cvtoslvl", 0x4f0, 16),
	// Set on systems that save the user PSW at its current position in
	// the USTA. Older systems saved it a doubleword earlier.
	template.Bits("cvtzose", 0x4f4, 2, 1),
)

// ASCB is the address space control block.
var ASCB = template.New("ASCB", 0x180,
	template.U("ascbasxb", 0x6c, 4),
)

// ASXB is the address space extension block, which anchors the task queue.
var ASXB = template.New("ASXB", 0x110,
	template.U("asxbftcb", 0x04, 4),
	template.U("asxbltcb", 0x08, 4),
)

// TCB is the task control block.
var TCB = template.New("TCB", 0x160,
	template.U("tcbrbp", 0x00, 4),
	template.U("tcbcelap", 0x2c, 4),
	template.W("tcbgrs", 0x30, 64),
	template.U("tcbtcb", 0x74, 4),
	template.U("tcbrtwa", 0xe0, 4),
	template.U("tcbstcb", 0x138, 4),
)

// STCB is the secondary task control block.
var STCB = template.New("STCB", 0x180,
	template.U("stcblsbt", 0x78, 4),
	template.U("stcblstp", 0x7c, 4),
	template.U("stcbotcb", 0xd8, 4),
	template.W("stcbg64h", 0x100, 64),
)

// OTCB is the OMVS extension of a task.
var OTCB = template.New("OTCB", 0x1a0,
	template.Bits("otcbptregsinusta", 0x1e, 3, 1),
	template.U("otcbthli", 0xbc, 4),
)

// THLI is the OMVS thread level information.
var THLI = template.New("THLI", 0x100,
	template.U("thliusta", 0x48, 4),
)

// USTA is the user state area saved on entry to a kernel service.
var USTA = template.New("USTA", 0x90,
	template.W("ustagrs", 0x08, 64),
	template.U("ustapsw", 0x50, 8),
)

// RB is a request block. Only the fields common to all RB types are
// mapped.
var RB = template.New("RB", 0x60,
	template.Bits("rbftp", 0x0a, 0, 3),
	template.U("rbopsw", 0x10, 8),
	template.U("rblink", 0x1c, 4),
	template.W("rbgrsave", 0x20, 64),
)

// rbftpPRB is the rbftp value of a program request block.
const rbftpPRB = 0

// LSED is the entry descriptor found at the start of every linkage stack
// entry.
var LSED = template.New("LSED", 0x08,
	template.Bits("lsedet", 0x01, 1, 7),
	template.U("lsedrfs", 0x04, 2),
	template.S("lsednes", 0x06, 2),
)

// LseState is an ESA/390 state entry with 32-bit registers.
var LseState = template.New("LSESTATE", 0xa8,
	template.Bits("lsestyp7", 0x01, 1, 7),
	template.S("lsesnes", 0x06, 2),
	template.W("lsesgrs", 0x08, 64),
	template.W("lsesars", 0x48, 64),
	template.U("lsespkm", 0x88, 2),
	template.U("lsessasn", 0x8a, 2),
	template.U("lseseax", 0x8c, 2),
	template.U("lsespasn", 0x8e, 2),
	template.U("lsespsw", 0x90, 8),
	template.U("lsestarg", 0x98, 4),
	template.U("lsesmsta", 0x9c, 8),
)

// LseState1 is a z/Architecture state entry with 64-bit registers and a
// 16-byte PSW.
var LseState1 = template.New("LSESTATE1", 0x128,
	template.Bits("lses1typ7", 0x01, 1, 7),
	template.S("lses1nes", 0x06, 2),
	template.W("lses1grs", 0x08, 128),
	template.W("lses1ars", 0x88, 64),
	template.U("lses1pkm", 0xc8, 2),
	template.U("lses1sasn", 0xca, 2),
	template.U("lses1eax", 0xcc, 2),
	template.U("lses1pasn", 0xce, 2),
	template.W("lses1psw", 0xd0, 16),
	template.U("lses1pswh", 0xd0, 8),
	template.U("lses1pswl", 0xd8, 8),
	template.U("lses1targ", 0xe0, 4),
	template.U("lses1msta", 0xe8, 8),
)

// Layouts lists every control-block layout decoded by this package.
func Layouts() []*template.Template {
	return []*template.Template{PSA, CVT, ASCB, ASXB, TCB, STCB, OTCB, THLI, USTA, RB, LSED, LseState, LseState1}
}
