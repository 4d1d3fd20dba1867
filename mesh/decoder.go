package mesh

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
)

// maxReportBytes bounds a decompressed report
const maxReportBytes = 16 << 20

// DecodeReport decodes a single scanner report from any of:
//   - JSON {"id":N,"probes":[[x,y,z],...]}
//   - a text block headed by "--- scanner N ---"
//   - either of the above compressed with gzip or zlib
func DecodeReport(data []byte) (Scanner, error) {
	// Only leading whitespace is dropped; trailing bytes belong to the
	// checksum of a compressed report.
	data = bytes.TrimLeft(data, " \t\r\n")
	if len(bytes.TrimSpace(data)) == 0 {
		return Scanner{}, fmt.Errorf("empty report")
	}

	switch {
	case data[0] == '{':
		return ParseScannerJSON(data)
	case bytes.HasPrefix(data, []byte("---")):
		return decodeTextReport(data)
	case isGzip(data):
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return Scanner{}, fmt.Errorf("opening gzip report: %w", err)
		}
		inner, err := inflate(gz)
		if err != nil {
			return Scanner{}, fmt.Errorf("decompressing gzip report: %w", err)
		}
		return decodePlainReport(inner)
	default:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return Scanner{}, fmt.Errorf("unknown report format: not JSON, text, gzip or zlib")
		}
		inner, err := inflate(zr)
		if err != nil {
			return Scanner{}, fmt.Errorf("decompressing zlib report: %w", err)
		}
		return decodePlainReport(inner)
	}
}

// decodePlainReport decodes an already decompressed report; nested
// compression is rejected.
func decodePlainReport(data []byte) (Scanner, error) {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return Scanner{}, fmt.Errorf("decompressed report is empty")
	case data[0] == '{':
		return ParseScannerJSON(data)
	case bytes.HasPrefix(data, []byte("---")):
		return decodeTextReport(data)
	}
	return Scanner{}, fmt.Errorf("decompressed report is neither JSON nor text")
}

func decodeTextReport(data []byte) (Scanner, error) {
	scanners, err := parseBlocks(bytes.NewReader(data))
	if err != nil {
		return Scanner{}, err
	}
	if len(scanners) != 1 {
		return Scanner{}, fmt.Errorf("expected one scanner per report, got %d", len(scanners))
	}
	return scanners[0], nil
}

// isGzip checks for the gzip magic bytes
func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// inflate drains a decompressing reader, refusing oversized payloads
func inflate(reader io.ReadCloser) ([]byte, error) {
	defer func() { _ = reader.Close() }()

	out, err := io.ReadAll(io.LimitReader(reader, maxReportBytes+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxReportBytes {
		return nil, fmt.Errorf("report exceeds %d bytes", maxReportBytes)
	}
	return out, nil
}
