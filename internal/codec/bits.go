package codec

import "errors"

var errShortBits = errors.New("codec: truncated bit stream")

// bitWriter packs values most-significant bit first.
type bitWriter struct {
	buf  []byte
	nbit int
}

func (w *bitWriter) write(v uint64, width int) {
	for i := width - 1; i >= 0; i-- {
		if w.nbit%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if (v>>uint(i))&1 == 1 {
			w.buf[len(w.buf)-1] |= 1 << uint(7-w.nbit%8)
		}
		w.nbit++
	}
}

func (w *bitWriter) bytes() []byte { return w.buf }

type bitReader struct {
	buf []byte
	pos int
}

func (r *bitReader) read(width int) (uint64, error) {
	if r.pos+width > len(r.buf)*8 {
		return 0, errShortBits
	}
	var v uint64
	for i := 0; i < width; i++ {
		b := r.buf[r.pos/8]
		bit := (b >> uint(7-r.pos%8)) & 1
		v = v<<1 | uint64(bit)
		r.pos++
	}
	return v, nil
}
