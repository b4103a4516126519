package wasm

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Minimal WebAssembly assembler for test guests. Every guest exports memory,
// alloc, initialize and call, and imports a subset of the host module.

const (
	valI32 byte = 0x7f

	opUnreachable byte = 0x00
	opIf          byte = 0x04
	opEnd         byte = 0x0b
	opReturn      byte = 0x0f
	opCall        byte = 0x10
	opSelect      byte = 0x1b
	opLocalGet    byte = 0x20
	opLocalSet    byte = 0x21
	opI32Const    byte = 0x41
	opI32LtS      byte = 0x48

	blockEmpty byte = 0x40
)

// guestHeapBase is where the test guests' alloc places input data.
const guestHeapBase = 1024

type hostImport struct {
	name    string
	params  int
	results int
}

var (
	importStorageGet    = hostImport{"storage_get", 4, 1}
	importStoragePut    = hostImport{"storage_put", 4, 0}
	importStorageRemove = hostImport{"storage_remove", 2, 0}
	importTxHash        = hostImport{"tx_hash", 1, 0}
	importAuthor        = hostImport{"author", 1, 0}
	importDispatchCall  = hostImport{"dispatch_call", 4, 1}
)

type guestFunc struct {
	locals int
	body   []byte
}

type guest struct {
	imports    []hostImport
	initialize guestFunc
	call       guestFunc
	skipExport string
}

// uleb is unsigned LEB128, the same encoding as a protobuf varint.
func uleb(v int) []byte {
	return protowire.AppendVarint(nil, uint64(v))
}

func sleb(v int32) []byte {
	var b []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func concat(parts ...[]byte) []byte {
	var b []byte
	for _, p := range parts {
		b = append(b, p...)
	}
	return b
}

func vec(items ...[]byte) []byte {
	return concat(append([][]byte{uleb(len(items))}, items...)...)
}

func wasmName(s string) []byte {
	return append(uleb(len(s)), s...)
}

func section(id byte, content []byte) []byte {
	return concat([]byte{id}, uleb(len(content)), content)
}

func funcType(params, results int) []byte {
	b := append([]byte{0x60}, uleb(params)...)
	for range params {
		b = append(b, valI32)
	}
	b = append(b, uleb(results)...)
	for range results {
		b = append(b, valI32)
	}
	return b
}

func localGet(i int) []byte   { return append([]byte{opLocalGet}, uleb(i)...) }
func localSet(i int) []byte   { return append([]byte{opLocalSet}, uleb(i)...) }
func i32Const(v int32) []byte { return append([]byte{opI32Const}, sleb(v)...) }
func callFunc(i int) []byte   { return append([]byte{opCall}, uleb(i)...) }

func (f guestFunc) encode() []byte {
	locals := []byte{0x00}
	if f.locals > 0 {
		locals = concat([]byte{0x01}, uleb(f.locals), []byte{valI32})
	}
	code := concat(locals, f.body, []byte{opEnd})
	return append(uleb(len(code)), code...)
}

func (g guest) build() []byte {
	n := len(g.imports)

	var types, imports [][]byte
	for i, imp := range g.imports {
		types = append(types, funcType(imp.params, imp.results))
		imports = append(imports, concat(wasmName(hostModuleName), wasmName(imp.name), []byte{0x00}, uleb(i)))
	}
	types = append(types, funcType(1, 1), funcType(2, 1), funcType(3, 1))

	exports := [][]byte{}
	add := func(name string, kind byte, idx int) {
		if name != g.skipExport {
			exports = append(exports, concat(wasmName(name), []byte{kind}, uleb(idx)))
		}
	}
	add(exportMemory, 0x02, 0)
	add(exportAlloc, 0x00, n)
	add(exportInitialize, 0x00, n+1)
	add(exportCall, 0x00, n+2)

	alloc := guestFunc{body: i32Const(guestHeapBase)}

	module := concat(
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
		section(1, vec(types...)),
	)
	if n > 0 {
		module = append(module, section(2, vec(imports...))...)
	}
	return concat(
		module,
		section(3, vec(uleb(n), uleb(n+1), uleb(n+2))),
		section(5, vec([]byte{0x00, 0x01})),
		section(7, vec(exports...)),
		section(10, vec(alloc.encode(), g.initialize.encode(), g.call.encode())),
	)
}

var okInitialize = guestFunc{body: i32Const(0)}

// writerGuest stores payload under itself and returns the method id. Its
// initializer rejects non-empty params with status 7.
var writerGuest = guest{
	imports: []hostImport{importStoragePut},
	initialize: guestFunc{body: concat(
		i32Const(7), i32Const(0), localGet(1), []byte{opSelect},
	)},
	call: guestFunc{body: concat(
		localGet(1), localGet(2), localGet(1), localGet(2), callFunc(0),
		localGet(0),
	)},
}

// readerGuest looks up payload and stores the key under the value found.
// A missing key yields status 1.
var readerGuest = guest{
	imports:    []hostImport{importStorageGet, importStoragePut},
	initialize: okInitialize,
	call: guestFunc{locals: 1, body: concat(
		localGet(1), localGet(2), i32Const(4096), i32Const(64), callFunc(0), localSet(3),
		localGet(3), i32Const(0), []byte{opI32LtS, opIf, blockEmpty},
		i32Const(1), []byte{opReturn, opEnd},
		i32Const(4096), localGet(3), localGet(1), localGet(2), callFunc(1),
		i32Const(0),
	)},
}

// eraserGuest removes the key given as payload.
var eraserGuest = guest{
	imports:    []hostImport{importStorageRemove},
	initialize: okInitialize,
	call: guestFunc{body: concat(
		localGet(1), localGet(2), callFunc(0),
		i32Const(0),
	)},
}

// metaGuest stores the author key under the transaction hash.
var metaGuest = guest{
	imports:    []hostImport{importTxHash, importAuthor, importStoragePut},
	initialize: okInitialize,
	call: guestFunc{body: concat(
		i32Const(2048), callFunc(0),
		i32Const(2112), callFunc(1),
		i32Const(2048), i32Const(32), i32Const(2112), i32Const(32), callFunc(2),
		i32Const(0),
	)},
}

// relayGuest forwards payload to method 0 of the instance named by its own
// method id and returns the callee's status.
var relayGuest = guest{
	imports:    []hostImport{importDispatchCall},
	initialize: okInitialize,
	call: guestFunc{body: concat(
		localGet(0), i32Const(0), localGet(1), localGet(2), callFunc(0),
	)},
}

// trapGuest traps on every call.
var trapGuest = guest{
	initialize: okInitialize,
	call:       guestFunc{body: []byte{opUnreachable}},
}
