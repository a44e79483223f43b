package x11

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerialExtender(t *testing.T) {
	tests := []struct {
		name string
		seqs []uint16
		want []uint64
	}{
		{
			name: "monotonic",
			seqs: []uint16{1, 2, 10, 500},
			want: []uint64{1, 2, 10, 500},
		},
		{
			name: "wraps",
			seqs: []uint16{0xfffe, 0xffff, 0, 3},
			want: []uint64{0xfffe, 0xffff, 0x10000, 0x10003},
		},
		{
			name: "late event is older",
			seqs: []uint16{100, 90, 101},
			want: []uint64{100, 90, 101},
		},
		{
			name: "late event across wrap",
			seqs: []uint16{0xfff0, 5, 0xfffa, 6},
			want: []uint64{0xfff0, 0x10005, 0xfffa, 0x10006},
		},
		{
			name: "before start",
			seqs: []uint16{0xfff0},
			want: []uint64{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s serialExtender
			got := make([]uint64, 0, len(tt.seqs))
			for _, seq := range tt.seqs {
				got = append(got, s.extend(seq))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
