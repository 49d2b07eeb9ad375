package pty

import (
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestDecoderCarriesSplitRune(t *testing.T) {
	d := newDecoder()
	euro := []byte("€") // e2 82 ac

	assert.Equal(t, "a", d.decode(append([]byte("a"), euro[:1]...)))
	assert.Equal(t, "", d.decode(euro[1:2]))
	assert.Equal(t, "€b", d.decode(append(euro[2:], 'b')))
}

func TestDecoderReplacesInvalidBytes(t *testing.T) {
	d := newDecoder()

	out := d.decode([]byte{'o', 'k', 0xff, '!'})
	assert.Equal(t, "ok�!", out)
}

func TestDecoderEmitsEachByteOnce(t *testing.T) {
	d := newDecoder()

	assert.Equal(t, "\ufffd\ufffda", d.decode([]byte{0xff, 0xfe, 'a'}))
	assert.Equal(t, "", d.flush())
}

func TestDecoderFlushReplacesDanglingBytes(t *testing.T) {
	d := newDecoder()

	assert.Equal(t, "x", d.decode([]byte{'x', 0xe2}))
	assert.Equal(t, "�", d.flush())
}

func TestDecoderSplitProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("splitting valid text at any byte decodes to the same text", prop.ForAll(
		func(s string, cut int) bool {
			raw := []byte(s)
			if len(raw) > 0 {
				cut %= len(raw) + 1
			} else {
				cut = 0
			}

			d := newDecoder()
			out := d.decode(raw[:cut]) + d.decode(raw[cut:]) + d.flush()
			return out == s
		},
		gen.AnyString().SuchThat(utf8.ValidString),
		gen.IntRange(0, 1<<16),
	))

	properties.Property("decoded output is always valid UTF-8", prop.ForAll(
		func(chunks [][]byte) bool {
			d := newDecoder()
			for _, c := range chunks {
				if !utf8.ValidString(d.decode(c)) {
					return false
				}
			}
			return utf8.ValidString(d.flush())
		},
		gen.SliceOf(gen.SliceOf(gen.UInt8())),
	))

	properties.Property("decoded output has at most one rune per input byte", prop.ForAll(
		func(raw []byte) bool {
			d := newDecoder()
			out := d.decode(raw) + d.flush()
			return utf8.RuneCountInString(out) <= len(raw)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
