package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"strings"
)

// Probe is one packet to push through the compiled rules.
type Probe struct {
	Label   string
	SrcHost string
	SrcIP   netip.Addr
	DstIP   netip.Addr
}

// ParseProbes reads a CSV with the columns "Source Host", "Source IP" and
// "Destination IP", plus an optional "Label". Rows with unparsable addresses
// are skipped.
func ParseProbes(r io.Reader) ([]Probe, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}

	colMap := make(map[string]int)
	for i, colName := range header {
		colMap[strings.ToLower(strings.TrimSpace(colName))] = i
	}
	hostCol, ok := colMap["source host"]
	if !ok {
		return nil, fmt.Errorf("could not find 'Source Host' column in probe file")
	}
	srcCol, ok := colMap["source ip"]
	if !ok {
		return nil, fmt.Errorf("could not find 'Source IP' column in probe file")
	}
	dstCol, ok := colMap["destination ip"]
	if !ok {
		return nil, fmt.Errorf("could not find 'Destination IP' column in probe file")
	}
	labelCol, hasLabel := colMap["label"]

	var probes []Probe
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		src, err := netip.ParseAddr(strings.TrimSpace(record[srcCol]))
		if err != nil || !src.Is4() {
			slog.Warn("Skipping probe with invalid source address", "line", line, "value", record[srcCol])
			continue
		}
		dst, err := netip.ParseAddr(strings.TrimSpace(record[dstCol]))
		if err != nil || !dst.Is4() {
			slog.Warn("Skipping probe with invalid destination address", "line", line, "value", record[dstCol])
			continue
		}
		probe := Probe{SrcHost: strings.TrimSpace(record[hostCol]), SrcIP: src, DstIP: dst}
		if hasLabel && labelCol < len(record) {
			probe.Label = record[labelCol]
		}
		if probe.Label == "" {
			probe.Label = fmt.Sprintf("%s->%s", probe.SrcHost, dst)
		}
		probes = append(probes, probe)
	}
	return probes, nil
}
