package restapi

import (
	"bytes"
	"sync"
)

// maxPoolBufferCap keeps outsized buffers from being retained forever;
// bytes.Buffer.Reset only resets length, not capacity.
const maxPoolBufferCap = 64 * 1024

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

func getBuffer() *bytes.Buffer {
	buf, ok := bufferPool.Get().(*bytes.Buffer)
	if !ok {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	}
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPoolBufferCap {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}
