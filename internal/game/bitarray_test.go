package game

import (
	"errors"
	"testing"
)

func TestBitArrayRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		bits    int
		packing Packing
		values  []int
	}{
		{"padded 4 bits", 4, PackingPadded, []int{0, 1, 15, 7, 8, 3, 0, 14}},
		{"padded 5 bits", 5, PackingPadded, []int{31, 0, 16, 1, 30, 2}},
		{"split 4 bits", 4, PackingSplit, []int{0, 1, 15, 7, 8, 3, 0, 14}},
		{"split 5 bits straddles words", 5, PackingSplit, make([]int, 100)},
		{"padded 13 bits", 13, PackingPadded, []int{0, 8191, 4096, 1}},
		{"split 13 bits", 13, PackingSplit, []int{0, 8191, 4096, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.values) == 100 {
				// Fill the straddle case with a value pattern that exercises
				// every word boundary.
				for i := range tt.values {
					tt.values[i] = i % 32
				}
			}

			words := WriteBitArray(tt.values, tt.bits, tt.packing)
			got, err := ReadBitArray(words, len(tt.values), tt.bits, tt.packing)
			if err != nil {
				t.Fatalf("ReadBitArray: %v", err)
			}
			for i := range tt.values {
				if got[i] != tt.values[i] {
					t.Fatalf("entry %d = %d, want %d", i, got[i], tt.values[i])
				}
			}
		})
	}
}

func TestBitArrayZeroBits(t *testing.T) {
	got, err := ReadBitArray(nil, 4096, 0, PackingPadded)
	if err != nil {
		t.Fatalf("ReadBitArray: %v", err)
	}
	if len(got) != 4096 {
		t.Fatalf("len = %d, want 4096", len(got))
	}
	for i, v := range got {
		if v != 0 {
			t.Fatalf("entry %d = %d, want 0", i, v)
		}
	}

	if words := WriteBitArray([]int{0, 0, 0}, 0, PackingPadded); words != nil {
		t.Errorf("WriteBitArray with 0 bits = %v, want nil", words)
	}
}

func TestBitArrayTruncated(t *testing.T) {
	// 64 entries of 4 bits need 4 padded words.
	words := make([]uint64, 3)
	_, err := ReadBitArray(words, 64, 4, PackingPadded)
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestBitArrayRejectsBadWidth(t *testing.T) {
	if _, err := ReadBitArray(nil, 1, -1, PackingPadded); err == nil {
		t.Error("negative width accepted")
	}
	if _, err := ReadBitArray(nil, 1, 33, PackingPadded); err == nil {
		t.Error("width 33 accepted")
	}
	if _, err := ReadBitArray(nil, -1, 4, PackingPadded); err == nil {
		t.Error("negative count accepted")
	}
}

func TestPackedLayoutsDiffer(t *testing.T) {
	// 5-bit entries: split fits 64/5 worth of data continuously, padded
	// wastes the top 4 bits of each word. 13 entries need one split word
	// but two padded words.
	values := make([]int, 13)
	for i := range values {
		values[i] = 1
	}

	split := WriteBitArray(values, 5, PackingSplit)
	padded := WriteBitArray(values, 5, PackingPadded)
	if len(split) != 2 || len(padded) != 2 {
		t.Fatalf("word counts = %d split, %d padded", len(split), len(padded))
	}
	if split[0] == padded[0] {
		t.Error("split and padded layouts agree on a straddling pattern")
	}
}

func TestWordsForBitArray(t *testing.T) {
	tests := []struct {
		count, bits int
		packing     Packing
		want        int
	}{
		{4096, 4, PackingPadded, 256},
		{4096, 4, PackingSplit, 256},
		{4096, 5, PackingPadded, 342},
		{4096, 5, PackingSplit, 320},
		{64, 3, PackingPadded, 4},
		{0, 8, PackingPadded, 0},
		{10, 0, PackingSplit, 0},
	}

	for _, tt := range tests {
		got := wordsForBitArray(tt.count, tt.bits, tt.packing)
		if got != tt.want {
			t.Errorf("wordsForBitArray(%d, %d, %v) = %d, want %d",
				tt.count, tt.bits, tt.packing, got, tt.want)
		}
	}
}

func TestBitsFor(t *testing.T) {
	tests := []struct {
		maxIndex, want int
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{15, 4},
		{16, 5},
		{31, 5},
		{32, 6},
	}

	for _, tt := range tests {
		if got := bitsFor(tt.maxIndex); got != tt.want {
			t.Errorf("bitsFor(%d) = %d, want %d", tt.maxIndex, got, tt.want)
		}
	}
}
