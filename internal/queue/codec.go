package queue

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var (
	audioEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithZeroFrames(true))
	audioDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

func compressAudio(data []byte) []byte {
	return audioEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func decompressAudio(data []byte) ([]byte, error) {
	out, err := audioDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress audio: %w", err)
	}
	return out, nil
}
