package pty

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decoder turns raw terminal bytes into UTF-8 text. Invalid sequences become
// U+FFFD and a character split across two reads is held back until the
// rest of it arrives.
type decoder struct {
	out bytes.Buffer
	w   *transform.Writer
}

func newDecoder() *decoder {
	d := &decoder{}
	d.w = transform.NewWriter(&d.out, unicode.UTF8.NewDecoder())
	return d
}

// decode never fails: the UTF-8 decoder replaces instead of erroring and
// the writer targets a bytes.Buffer.
func (d *decoder) decode(p []byte) string {
	_, _ = d.w.Write(p)
	return d.take()
}

// flush emits any held back partial character as U+FFFD.
func (d *decoder) flush() string {
	d.w.Close()
	return d.take()
}

func (d *decoder) take() string {
	if d.out.Len() == 0 {
		return ""
	}
	s := d.out.String()
	d.out.Reset()
	return s
}
