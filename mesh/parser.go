package mesh

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ParseError reports a malformed line in a scanner report.
type ParseError struct {
	Line int // 1-based; 0 when the error is not tied to a line
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return "parsing scanners: " + e.Msg
	}
	return fmt.Sprintf("parsing scanners: line %d: %s", e.Line, e.Msg)
}

// ParseScannerFile reads and parses a scanner report file
func ParseScannerFile(path string) ([]Scanner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseScanners(f)
}

// ParseScannersString parses scanner blocks held in a string.
func ParseScannersString(s string) ([]Scanner, error) {
	return ParseScanners(strings.NewReader(s))
}

// ParseScanners parses blocks of the form
//
//	--- scanner 0 ---
//	404,-588,-901
//	528,-643,409
//
// Leading and trailing whitespace on each line is ignored. Scanner ids must
// be exactly 0..n-1, in any order.
func ParseScanners(r io.Reader) ([]Scanner, error) {
	scanners, err := parseBlocks(r)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(scanners))
	for _, s := range scanners {
		seen[s.ID] = true
	}
	for id := range scanners {
		if !seen[id] {
			return nil, &ParseError{Msg: fmt.Sprintf("scanner ids must be 0..%d, missing %d", len(scanners)-1, id)}
		}
	}
	return scanners, nil
}

// parseBlocks reads scanner blocks in file order, rejecting duplicate ids.
func parseBlocks(r io.Reader) ([]Scanner, error) {
	var (
		scanners []Scanner
		current  *Scanner
		lineNo   int
	)
	seen := make(map[int]bool)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "---") {
			id, err := parseHeader(line)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Msg: err.Error()}
			}
			if seen[id] {
				return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("duplicate scanner %d", id)}
			}
			seen[id] = true
			scanners = append(scanners, Scanner{ID: id})
			current = &scanners[len(scanners)-1]
			continue
		}

		if current == nil {
			return nil, &ParseError{Line: lineNo, Msg: "probe before any scanner header"}
		}
		p, err := parseTriple(line)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Msg: err.Error()}
		}
		current.Probes = append(current.Probes, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading scanners: %w", err)
	}
	return scanners, nil
}

// parseHeader extracts N from "--- scanner N ---".
func parseHeader(line string) (int, error) {
	fields := strings.Fields(strings.Trim(line, "- \t"))
	if len(fields) != 2 || fields[0] != "scanner" {
		return 0, fmt.Errorf("malformed scanner header %q", line)
	}
	if !strings.HasPrefix(line, "--- ") || !strings.HasSuffix(line, " ---") {
		return 0, fmt.Errorf("malformed scanner header %q", line)
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid scanner id %q", fields[1])
	}
	return id, nil
}

func parseTriple(line string) (Point3, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return Point3{}, fmt.Errorf("expected x,y,z, got %q", line)
	}
	var v [3]int64
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return Point3{}, fmt.Errorf("invalid coordinate %q", part)
		}
		v[i] = n
	}
	return Point3{X: v[0], Y: v[1], Z: v[2]}, nil
}

// FormatScanners writes scanners in the block format read by ParseScanners.
func FormatScanners(w io.Writer, scanners []Scanner) error {
	bw := bufio.NewWriter(w)
	for i, s := range scanners {
		if i > 0 {
			if _, err := bw.WriteString("\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(bw, "--- scanner %d ---\n", s.ID); err != nil {
			return err
		}
		for _, p := range s.Probes {
			if _, err := fmt.Fprintf(bw, "%d,%d,%d\n", p.X, p.Y, p.Z); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// ParseScannerJSON decodes a single scanner report such as
// {"id": 3, "probes": [[1,2,3], [4,5,6]]}.
func ParseScannerJSON(data []byte) (Scanner, error) {
	var s Scanner
	if err := json.Unmarshal(data, &s); err != nil {
		return Scanner{}, fmt.Errorf("parsing JSON: %w", err)
	}
	if s.ID < 0 {
		return Scanner{}, fmt.Errorf("parsing JSON: invalid scanner id %d", s.ID)
	}
	return s, nil
}

// ScannerSummary describes a parsed scanner for the CLI.
type ScannerSummary struct {
	ID         int
	ProbeCount int
	Min        Point3
	Max        Point3
}

// SummarizeScanners returns one summary per scanner, in input order.
func SummarizeScanners(scanners []Scanner) []ScannerSummary {
	out := make([]ScannerSummary, 0, len(scanners))
	for _, s := range scanners {
		sum := ScannerSummary{ID: s.ID, ProbeCount: len(s.Probes)}
		for i, p := range s.Probes {
			if i == 0 {
				sum.Min, sum.Max = p, p
				continue
			}
			sum.Min = Point3{X: min(sum.Min.X, p.X), Y: min(sum.Min.Y, p.Y), Z: min(sum.Min.Z, p.Z)}
			sum.Max = Point3{X: max(sum.Max.X, p.X), Y: max(sum.Max.Y, p.Y), Z: max(sum.Max.Z, p.Z)}
		}
		out = append(out, sum)
	}
	return out
}
