package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"netpath-verifier/internal/engine"
	"netpath-verifier/internal/parser"
	"netpath-verifier/internal/topology"
)

// probeProtocol is the IPv4 protocol of simulated probe packets (TCP).
const probeProtocol = 6

func newCheckCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Replay probe packets through the compiled rules",
		Long: `check compiles the invariants, forwards each probe along the static
	routes of the topology and reports which invariants the path violates.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return runCheck(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("probes", "", "Probe CSV file (required)")
	cmd.Flags().String("report", "check.csv", "Output CSV report")
	cmd.MarkFlagRequired("probes")
	v.BindPFlag("probes", cmd.Flags().Lookup("probes"))
	v.BindPFlag("report", cmd.Flags().Lookup("report"))
	return cmd
}

func runCheck(ctx context.Context, cfg *config) error {
	slog.SetDefault(setupLogger(cfg.LogLevel, cfg.LogFile))

	net, invs, err := loadInputs(ctx, cfg)
	if err != nil {
		return err
	}
	plan := buildPlan(net, invs, cfg.Workers)
	for _, f := range plan.Failures {
		slog.Warn("Invariant not checked, compile failed", "id", f.ID, "name", f.Name, "error", f.Error)
	}
	evaluator := engine.NewEvaluator(plan.Border, plan.Invariants)

	probeF, err := os.Open(cfg.Probes)
	if err != nil {
		slog.Error("Failed to open probe file", "path", cfg.Probes, "error", err)
		return err
	}
	defer probeF.Close()
	probes, err := parser.ParseProbes(probeF)
	if err != nil {
		return err
	}

	out, err := os.Create(cfg.Report)
	if err != nil {
		slog.Error("Failed to create report file", "path", cfg.Report, "error", err)
		return err
	}
	defer out.Close()
	w := csv.NewWriter(out)
	defer w.Flush()
	w.Write([]string{"label", "source_host", "source_ip", "destination_ip", "path", "dropped", "final_state", "violations"})

	violating := 0
	for _, probe := range probes {
		record, violated, err := checkProbe(evaluator, net, probe)
		if err != nil {
			slog.Warn("Skipping probe", "label", probe.Label, "error", err)
			continue
		}
		if violated {
			violating++
		}
		w.Write(record)
	}
	slog.Info("Check complete", "probes", len(probes), "violating", violating, "report", cfg.Report)
	return nil
}

func checkProbe(e *engine.Evaluator, net *topology.Network, probe parser.Probe) ([]string, bool, error) {
	hops, err := engine.Forward(net, probe.SrcHost, probe.DstIP)
	if err != nil {
		return nil, false, err
	}
	trace := e.Simulate(net, engine.Packet{Src: probe.SrcIP, Dst: probe.DstIP, Protocol: probeProtocol}, hops)
	return []string{
		probe.Label,
		probe.SrcHost,
		probe.SrcIP.String(),
		probe.DstIP.String(),
		formatPath(trace.Hops),
		strconv.FormatBool(trace.Dropped),
		strconv.FormatUint(trace.FinalState, 10),
		formatViolations(trace.Violations),
	}, len(trace.Violations) > 0, nil
}

func formatPath(hops []engine.Hop) string {
	parts := make([]string, len(hops))
	for i, h := range hops {
		parts[i] = fmt.Sprintf("%s:%d>%d", h.Switch, h.InPort, h.OutPort)
	}
	return strings.Join(parts, " ")
}

func formatViolations(vs []engine.Violation) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%d@%s", v.InvariantID, v.Switch)
	}
	return strings.Join(parts, " ")
}
