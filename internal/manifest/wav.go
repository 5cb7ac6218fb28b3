package manifest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNotWAV is returned when a recording has no RIFF/WAVE header.
var ErrNotWAV = errors.New("recording is not a WAV file")

// WAVDuration reads the duration in seconds from a RIFF/WAVE header.
func WAVDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	var header [12]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return 0, ErrNotWAV
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0, ErrNotWAV
	}

	var byteRate uint32
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(f, chunk[:]); err != nil {
			return 0, fmt.Errorf("%w: no data chunk", ErrNotWAV)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])
		switch id {
		case "fmt ":
			if size < 16 {
				return 0, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(f, body); err != nil {
				return 0, fmt.Errorf("%w: truncated fmt chunk", ErrNotWAV)
			}
			byteRate = binary.LittleEndian.Uint32(body[8:12])
		case "data":
			if byteRate == 0 {
				return 0, fmt.Errorf("%w: data before fmt chunk", ErrNotWAV)
			}
			return float64(size) / float64(byteRate), nil
		default:
			if _, err := f.Seek(int64(size)+int64(size&1), io.SeekCurrent); err != nil {
				return 0, fmt.Errorf("skip chunk %q: %w", id, err)
			}
		}
		if id == "fmt " && size&1 == 1 {
			if _, err := f.Seek(1, io.SeekCurrent); err != nil {
				return 0, fmt.Errorf("skip pad byte: %w", err)
			}
		}
	}
}
