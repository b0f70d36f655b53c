package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyPayload = errors.New("empty audio payload")
	ErrBadEncoding  = errors.New("audio payload is not valid base64")
	ErrTruncated    = errors.New("audio payload truncated")
)

// payloadEncodings are tried in order; the generator sends padded standard
// base64 but some proxies re-encode with the URL alphabet or strip padding.
var payloadEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// DecodeChunk converts a base64 payload of little-endian 16-bit interleaved
// PCM into a normalized float buffer with the given rate and channel count.
// No state is kept between calls.
func DecodeChunk(payload string, sampleRate, channels int) (*Buffer, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid target format %d Hz / %d ch", sampleRate, channels)
	}

	var raw []byte
	var err error
	for _, enc := range payloadEncodings {
		raw, err = enc.DecodeString(payload)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
	}

	frameBytes := 2 * channels
	if len(raw) == 0 || len(raw)%frameBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrTruncated, len(raw), frameBytes)
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		samples[i] = float32(s) / 32768
	}

	return &Buffer{
		Samples:    samples,
		Channels:   channels,
		SampleRate: sampleRate,
	}, nil
}

// FloatToInt16 converts a normalized sample to int16, clipping out of range values.
func FloatToInt16(v float32) int16 {
	s := float64(v) * 32768
	if s > 32767 {
		return 32767
	} else if s < -32768 {
		return -32768
	}
	return int16(s)
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
