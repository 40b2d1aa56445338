package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	_ "embed"

	"netpath-verifier/internal/model"
)

//go:embed pipeline.csv
var pipelineData string

// Special ports of the software switch.
const (
	CPUPort  = 255
	DropPort = 511
)

// ProtoVerification is the IPv4 protocol number of the verification header.
const ProtoVerification = 0x91

// TraceLength is the number of hop slots in the recorded trace.
const TraceLength = 8

// Table names used by the verification program.
const (
	IngressEncapsulation = "MyIngress.encapsulation"
	IngressRegexInit     = "MyIngress.regex_init"
	IngressRegexTrans    = "MyIngress.regex_transition"
	IngressTrace         = "MyIngress.trace"
	IngressLoop          = "MyIngress.loop"
	EgressCheckLeaving   = "MyEgress.check_leaving"
	EgressRegexTrans     = "MyEgress.regex_transition"
	EgressRegexTerminate = "MyEgress.regex_terminate"
	EgressSegmentation   = "MyEgress.segmentation"
	EgressDecapsulation  = "MyEgress.decapsulation"
)

// Action names.
const (
	NoAction                = "NoAction"
	ActionInsertHeader      = "MyIngress.insert_verification_header"
	ActionInitialTransition = "MyIngress.initial_transition"
	ActionIngressViolate    = "MyIngress.violate"
	ActionIngressRegexTrans = "MyIngress.regex_trans"
	ActionAddTrace          = "MyIngress.add_trace"
	ActionMarkLeaving       = "MyEgress.mark_leaving"
	ActionEgressRegexTrans  = "MyEgress.regex_trans"
	ActionEgressViolate     = "MyEgress.violate"
	ActionRemoveHeader      = "MyEgress.remove_verification_header"
)

// Header and metadata fields.
const (
	FieldSrcAddr     = "hdr.ipv4.srcAddr"
	FieldDstAddr     = "hdr.ipv4.dstAddr"
	FieldProtocol    = "hdr.ipv4.protocol"
	FieldEntering    = "meta.verification.entering"
	FieldLeaving     = "meta.verification.leaving"
	FieldIngressPort = "std_meta.ingress_port"
	FieldEgressSpec  = "std_meta.egress_spec"
	FieldEgressPort  = "std_meta.egress_port"
	FieldDFAState    = "hdr.verification.dfaState"
	FieldTraceCount  = "hdr.verification.traceCount"
)

// TraceSwitchField returns the switch id field of trace slot i.
func TraceSwitchField(i int) string {
	return fmt.Sprintf("hdr.traces[%d].swId", i)
}

type Table struct {
	Name    string
	Fields  map[string]model.MatchKind
	Actions map[string]bool
}

var tableRegistry map[string]*Table

func init() {
	tableRegistry = make(map[string]*Table)
	reader := csv.NewReader(bytes.NewBufferString(pipelineData))
	reader.TrimLeadingSpace = true
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Fatalf("Failed to read header from embedded pipeline.csv: %v", err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to parse embedded pipeline.csv: %v", err)
		}
		if len(record) < 4 {
			continue
		}

		name := strings.TrimSpace(record[1])
		table, ok := tableRegistry[name]
		if !ok {
			table = &Table{Name: name, Fields: make(map[string]model.MatchKind), Actions: make(map[string]bool)}
			tableRegistry[name] = table
		}
		switch record[0] {
		case "field":
			table.Fields[strings.TrimSpace(record[2])] = model.MatchKind(strings.TrimSpace(record[3]))
		case "action":
			table.Actions[strings.TrimSpace(record[2])] = true
		}
	}
}

// GetTable returns the schema of a pipeline table.
func GetTable(name string) (*Table, bool) {
	table, ok := tableRegistry[name]
	return table, ok
}

// Tables returns the names of all known tables, sorted.
func Tables() []string {
	names := make([]string, 0, len(tableRegistry))
	for name := range tableRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that a rule only uses fields and actions its table declares,
// with the declared match kinds.
func Validate(rule model.Rule) error {
	table, ok := GetTable(rule.Table)
	if !ok {
		return fmt.Errorf("unknown table %q", rule.Table)
	}
	for field, m := range rule.Match {
		kind, ok := table.Fields[field]
		if !ok {
			return fmt.Errorf("table %s has no field %q", rule.Table, field)
		}
		if kind != m.Kind {
			return fmt.Errorf("table %s field %s expects %s match, got %s", rule.Table, field, kind, m.Kind)
		}
		if m.Kind == model.MatchRange && m.Low > m.High {
			return fmt.Errorf("table %s field %s has inverted range [%d, %d]", rule.Table, field, m.Low, m.High)
		}
	}
	if !table.Actions[rule.Action] {
		return fmt.Errorf("table %s does not allow action %q", rule.Table, rule.Action)
	}
	return nil
}
