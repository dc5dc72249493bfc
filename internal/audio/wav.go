package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"time"
)

const (
	DefaultSampleRate = 16000
	bitsPerSample     = 16
	channels          = 1
	wavHeaderSize     = 44
	toneHz            = 440
)

var ErrNotWAV = errors.New("not a PCM wav file")

// EncodeWAV renders a quiet mono tone of length d as 16-bit PCM wav.
func EncodeWAV(d time.Duration, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	samples := int(d.Seconds() * float64(sampleRate))
	dataSize := samples * channels * bitsPerSample / 8
	byteRate := sampleRate * channels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataSize))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))

	for i := range samples {
		v := 0.1 * math.Sin(2*math.Pi*toneHz*float64(i)/float64(sampleRate))
		binary.Write(buf, binary.LittleEndian, int16(v*math.MaxInt16))
	}

	return buf.Bytes()
}

// WAVDuration reads the play length from a canonical PCM wav header.
func WAVDuration(data []byte) (time.Duration, error) {
	if len(data) < wavHeaderSize ||
		string(data[0:4]) != "RIFF" ||
		string(data[8:12]) != "WAVE" ||
		string(data[12:16]) != "fmt " {
		return 0, ErrNotWAV
	}

	byteRate := binary.LittleEndian.Uint32(data[28:32])
	if byteRate == 0 {
		return 0, ErrNotWAV
	}

	// Walk the chunks after fmt until data shows up
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := binary.LittleEndian.Uint32(data[offset+4 : offset+8])

		if id == "data" {
			return time.Duration(float64(size) / float64(byteRate) * float64(time.Second)), nil
		}
		offset += 8 + int(size)
	}

	return 0, ErrNotWAV
}

// estimateDuration guesses the length of compressed audio from its size.
func estimateDuration(size int, bitrate int) time.Duration {
	if bitrate <= 0 {
		return 0
	}
	return time.Duration(float64(size*8) / float64(bitrate) * float64(time.Second))
}
