package shell

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const readChunkSize = 4096

// transcript accumulates decoded text from one child stream.
type transcript struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (t *transcript) append(chunk []byte) {
	t.mu.Lock()
	t.buf.Write(chunk)
	t.mu.Unlock()
}

func (t *transcript) contains(marker string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Contains(t.buf.String(), marker)
}

func (t *transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// pump copies r into t until EOF, calling onChunk after every append.
// Chunks carry no line framing; the UTF-8 decoder holds back partial
// multi-byte sequences until the next read completes them.
func pump(r io.Reader, t *transcript, onChunk func()) error {
	decoded := transform.NewReader(r, unicode.UTF8.NewDecoder())
	chunk := make([]byte, readChunkSize)
	for {
		n, err := decoded.Read(chunk)
		if n > 0 {
			t.append(chunk[:n])
			if onChunk != nil {
				onChunk()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
}
