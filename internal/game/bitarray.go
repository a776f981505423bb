package game

import (
	"errors"
	"fmt"
)

// Packing selects how fixed-width indices are laid out inside the 64-bit
// storage words of a section block array. The rule is a wire-format property
// keyed on protocol version, so callers must supply it explicitly.
type Packing int

const (
	// PackingSplit packs entries back-to-back; an entry that does not fit in
	// the current word continues in the low bits of the next one. Used before
	// game version 1.16.
	PackingSplit Packing = iota
	// PackingPadded never lets an entry straddle a word: when the remaining
	// bits of a word cannot hold a full entry they are left unused. Used from
	// 1.16 onward.
	PackingPadded
)

// ErrTruncated is returned when a declared length exceeds the bytes or words
// actually available. It is always recoverable at the unit (packet, section)
// that declared the length.
var ErrTruncated = errors.New("game: truncated data")

const wordBits = 64

// ReadBitArray decodes count indices of the given width from words. Width 0
// is the degenerate single-value case: no storage is consumed and all indices
// are zero. Indices are packed low-bit-first within each word.
func ReadBitArray(words []uint64, count, bits int, packing Packing) ([]int, error) {
	if bits < 0 || bits > 32 {
		return nil, fmt.Errorf("game: bits per entry %d out of range [0,32]", bits)
	}
	if count < 0 {
		return nil, fmt.Errorf("game: negative entry count %d", count)
	}
	out := make([]int, count)
	if bits == 0 {
		return out, nil
	}
	if len(words) < wordsForBitArray(count, bits, packing) {
		return nil, fmt.Errorf("%w: need %d words for %d entries of %d bits, have %d",
			ErrTruncated, wordsForBitArray(count, bits, packing), count, bits, len(words))
	}

	mask := uint64(1)<<bits - 1

	switch packing {
	case PackingPadded:
		perWord := wordBits / bits
		for i := 0; i < count; i++ {
			word := words[i/perWord]
			shift := (i % perWord) * bits
			out[i] = int(word >> shift & mask)
		}
	default: // PackingSplit
		bitIndex := 0
		for i := 0; i < count; i++ {
			word := bitIndex / wordBits
			offset := bitIndex % wordBits
			v := words[word] >> offset
			if rem := wordBits - offset; rem < bits {
				v |= words[word+1] << rem
			}
			out[i] = int(v & mask)
			bitIndex += bits
		}
	}
	return out, nil
}

// WriteBitArray is the inverse of ReadBitArray. Values must each fit in the
// given width; wider values are masked. Width 0 yields no storage.
func WriteBitArray(values []int, bits int, packing Packing) []uint64 {
	if bits <= 0 {
		return nil
	}
	words := make([]uint64, wordsForBitArray(len(values), bits, packing))
	mask := uint64(1)<<bits - 1

	switch packing {
	case PackingPadded:
		perWord := wordBits / bits
		for i, v := range values {
			shift := (i % perWord) * bits
			words[i/perWord] |= (uint64(v) & mask) << shift
		}
	default:
		bitIndex := 0
		for _, v := range values {
			word := bitIndex / wordBits
			offset := bitIndex % wordBits
			words[word] |= (uint64(v) & mask) << offset
			if rem := wordBits - offset; rem < bits {
				words[word+1] = (uint64(v) & mask) >> rem
			}
			bitIndex += bits
		}
	}
	return words
}

// wordsForBitArray returns the storage word count the given layout requires.
func wordsForBitArray(count, bits int, packing Packing) int {
	if bits == 0 || count == 0 {
		return 0
	}
	if packing == PackingPadded {
		perWord := wordBits / bits
		return (count + perWord - 1) / perWord
	}
	return (count*bits + wordBits - 1) / wordBits
}

// bitsFor returns the minimum width able to index value, i.e. the bits
// needed to represent the highest index of a palette of size value+1.
// bitsFor(0) is 0: a single possible value needs no storage.
func bitsFor(maxIndex int) int {
	bits := 0
	for maxIndex > 0 {
		bits++
		maxIndex >>= 1
	}
	return bits
}
