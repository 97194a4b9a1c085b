package stage

import "time"

// Effort and utilization knobs shared by every implementation stage.
var implCommonVars = []Var{
	{Name: "design_flow_effort", Default: "standard"},
	{Name: "design_power_effort", Default: "none"},
	{Name: "target_util", Default: "0.7"},
}

func implVars(extra ...Var) []Var {
	vars := make([]Var, 0, len(implCommonVars)+len(extra))
	vars = append(vars, implCommonVars...)
	vars = append(vars, extra...)
	return vars
}

var ordered = []*Spec{
	{
		Name:       "synthesis",
		Kind:       KindSynthesis,
		Templates:  []string{"synthesis.tcl"},
		ScriptFile: "synthesis.tcl",
		Vars: []Var{
			{Name: "clock_period", Default: "1.0"},
			{Name: "compile_effort", Default: "medium"},
		},
		Marker: MarkerFinished,
		RequiredOutputs: []string{
			"results/*.mapped.v",
			"results/*.mapped.sdc",
		},
		Owned: []string{
			"results/*",
			"reports/*",
			MarkerFinished,
		},
		Reports: []Report{
			{Name: "qor", Candidates: []string{"qor.rpt.gz", "qor.rpt"}},
			{Name: "timing", Candidates: []string{"timing.rpt.gz", "timing.rpt"}},
			{Name: "area", Candidates: []string{"area.rpt.gz", "area.rpt"}},
			{Name: "power", Candidates: []string{"power.rpt.gz", "power.rpt"}},
		},
		Artifacts: []Artifact{
			{Kind: "verilog", Patterns: []string{"*.mapped.v"}},
		},
		Timeout: time.Hour,
	},
	{
		Name:       "floorplan",
		Kind:       KindImplementation,
		Templates:  []string{"1_setup.tcl", "2_floorplan.tcl"},
		ScriptFile: "floorplan.tcl",
		Vars: implVars(
			Var{Name: "ASPECT_RATIO", Default: "1.0"},
		),
		Checkpoint: "floorplan.enc.dat",
		Marker:     MarkerDone,
		RequiredOutputs: []string{
			"pnr_save/floorplan.enc.dat",
		},
		Owned: []string{
			"pnr_save/floorplan.enc",
			"pnr_save/floorplan.enc.dat",
			"pnr_reports/floorplan_summary.rpt*",
			MarkerDone,
		},
		Reports: []Report{
			{Name: "floorplan_summary", Candidates: []string{"floorplan_summary.rpt.gz", "floorplan_summary.rpt"}},
		},
		Metrics: map[string]string{
			"core_area":   "floorplan.core_area",
			"utilization": "floorplan.utilization",
		},
		Timeout: time.Hour,
	},
	{
		Name:       "powerplan",
		Kind:       KindImplementation,
		Upstream:   "floorplan",
		Templates:  []string{"3_powerplan.tcl"},
		ScriptFile: "powerplan.tcl",
		Vars:       implVars(),
		Checkpoint: "powerplan.enc",
		RestoreCandidates: []string{
			"floorplan.enc.dat",
			"floorplan.enc",
		},
		Marker: MarkerDone,
		RequiredOutputs: []string{
			"pnr_save/powerplan.enc",
		},
		Owned: []string{
			"pnr_save/powerplan.enc",
			"pnr_save/powerplan.enc.dat",
			"pnr_reports/powerplan_summary.rpt*",
			MarkerDone,
		},
		Reports: []Report{
			{Name: "powerplan_summary", Candidates: []string{"powerplan_summary.rpt.gz", "powerplan_summary.rpt"}},
		},
		Timeout: time.Hour,
	},
	{
		Name:       "placement",
		Kind:       KindImplementation,
		Upstream:   "powerplan",
		Templates:  []string{"4_place.tcl"},
		ScriptFile: "placement.tcl",
		Vars: implVars(
			Var{Name: "place_global_timing_effort", Default: "medium"},
			Var{Name: "place_global_cong_effort", Default: "medium"},
			Var{Name: "place_detail_wire_length_opt_effort", Default: "medium"},
			Var{Name: "place_global_max_density", Default: "0.9"},
			Var{Name: "place_activity_power_driven", Default: "false"},
			Var{Name: "prects_opt_max_density", Default: "0.8"},
			Var{Name: "prects_opt_power_effort", Default: "low"},
			Var{Name: "prects_opt_reclaim_area", Default: "false"},
			Var{Name: "prects_fix_fanout_load", Default: "false"},
		),
		Checkpoint: "placement.enc",
		RestoreCandidates: []string{
			"powerplan.enc",
			"powerplan.enc.dat",
		},
		Marker: MarkerDone,
		RequiredOutputs: []string{
			"pnr_save/placement.enc",
		},
		Owned: []string{
			"pnr_save/placement.enc",
			"pnr_save/placement.enc.dat",
			"pnr_reports/check_place.out",
			"pnr_reports/place_timing.rpt*",
			"pnr_reports/place_opt_timing.rpt*",
			"pnr_out/place.def",
			"pnr_out/*_place.gds.gz",
			MarkerDone,
		},
		Reports: []Report{
			{Name: "check_place", Candidates: []string{"check_place.out"}},
			{Name: "place_timing", Candidates: []string{"place_timing.rpt.gz", "place_timing.rpt"}},
			{Name: "place_opt_timing", Candidates: []string{"place_opt_timing.rpt.gz", "place_opt_timing.rpt"}},
		},
		Artifacts: []Artifact{
			{Kind: "def", Patterns: []string{"place.def"}},
		},
		Metrics: map[string]string{
			"utilization": "placement.utilization",
			"wns":         "timing.setup.wns",
		},
		Timeout: time.Hour,
	},
	{
		Name:       "cts",
		Kind:       KindImplementation,
		Upstream:   "placement",
		Templates:  []string{"5_cts.tcl", "6_postcts_opt.tcl"},
		ScriptFile: "cts.tcl",
		Vars: implVars(
			Var{Name: "cts_cell_density", Default: "0.5"},
			Var{Name: "cts_clock_gate_buffering_location", Default: "below"},
			Var{Name: "cts_clone_clock_gates", Default: "true"},
			Var{Name: "postcts_opt_max_density", Default: "0.8"},
			Var{Name: "postcts_opt_power_effort", Default: "low"},
			Var{Name: "postcts_opt_reclaim_area", Default: "false"},
			Var{Name: "postcts_fix_fanout_load", Default: "false"},
		),
		Checkpoint: "cts.enc",
		RestoreCandidates: []string{
			"placement.enc",
			"placement.enc.dat",
		},
		Marker: MarkerDone,
		RequiredOutputs: []string{
			"pnr_save/cts.enc",
		},
		Owned: []string{
			"pnr_save/cts.enc",
			"pnr_save/cts.enc.dat",
			"pnr_reports/cts_opt_timing.rpt*",
			"pnr_reports/ccopt.txt",
			"pnr_out/clock.def",
			"pnr_out/*_cts.v",
			"pnr_out/*_cts.gds.gz",
			"pnr_out/RC_cts.spef.gz",
			MarkerDone,
		},
		Reports: []Report{
			{Name: "cts_opt_timing", Candidates: []string{"cts_opt_timing.rpt.gz", "cts_opt_timing.rpt"}},
			{Name: "ccopt", Candidates: []string{"ccopt.txt"}},
		},
		Metrics: map[string]string{
			"wns":  "timing.setup.wns",
			"skew": "clock.skew",
		},
		Timeout: time.Hour,
	},
	{
		Name:       "route",
		Kind:       KindImplementation,
		Upstream:   "cts",
		Templates:  []string{"7_route.tcl"},
		ScriptFile: "route.tcl",
		Vars:       implVars(),
		Checkpoint: "route_opt.enc",
		RestoreCandidates: []string{
			"cts.enc",
			"cts.enc.dat",
		},
		Marker: MarkerDone,
		RequiredOutputs: []string{
			"pnr_save/route_opt.enc",
			"pnr_out/route.def",
		},
		Owned: []string{
			"pnr_save/global_route.enc",
			"pnr_save/detail_route.enc",
			"pnr_save/route_opt.enc",
			"pnr_save/route_opt.enc.dat",
			"pnr_reports/route_summary.rpt*",
			"pnr_reports/congestion.rpt",
			"pnr_reports/route_timing.rpt*",
			"pnr_reports/route_opt_timing.rpt*",
			"pnr_reports/postRoute_drc_max1M.rpt",
			"pnr_reports/postOpt_drc_max1M.rpt",
			"pnr_out/route.def",
			"pnr_out/RC.spef.gz",
			MarkerDone,
		},
		Reports: []Report{
			{Name: "route_summary", Candidates: []string{"route_summary.rpt.gz", "route_summary.rpt"}},
			{Name: "congestion", Candidates: []string{"congestion.rpt"}},
			{Name: "route_timing", Candidates: []string{"route_timing.rpt.gz", "route_timing.rpt"}},
			{Name: "route_opt_timing", Candidates: []string{"route_opt_timing.rpt.gz", "route_opt_timing.rpt"}},
			{Name: "post_route_drc", Candidates: []string{"postRoute_drc_max1M.rpt"}},
			{Name: "post_opt_drc", Candidates: []string{"postOpt_drc_max1M.rpt"}},
		},
		Artifacts: []Artifact{
			{Kind: "def", Patterns: []string{"route.def"}},
			{Kind: "spef", Patterns: []string{"RC.spef.gz"}},
		},
		Metrics: map[string]string{
			"wns":            "timing.setup.wns",
			"tns":            "timing.setup.tns",
			"drc_violations": "drc.total",
		},
		Timeout: 2 * time.Hour,
	},
	{
		Name:       "save",
		Kind:       KindImplementation,
		Upstream:   "route",
		Templates:  []string{"8_save_design.tcl"},
		ScriptFile: "save.tcl",
		Vars:       implVars(),
		RestoreCandidates: []string{
			"route_opt.enc",
			"route_opt.enc.dat",
			"detail_route.enc",
			"detail_route.enc.dat",
			"route.enc",
			"route.enc.dat",
		},
		Marker: MarkerDone,
		RequiredOutputs: []string{
			"pnr_out/*_pnr.gds*",
			"pnr_out/*_pnr.v",
		},
		Owned: []string{
			"pnr_out/*_pnr.gds",
			"pnr_out/*_pnr.gds.gz",
			"pnr_out/*_pnr.def",
			"pnr_out/*_pnr.v",
			"pnr_out/*_pnr.lef",
			"pnr_out/*_lib.lef",
			"pnr_out/*_pnr.spef.gz",
			MarkerDone,
		},
		Artifacts: []Artifact{
			{Kind: "gds", Patterns: []string{"*_pnr.gds", "*_pnr.gds.gz"}},
			{Kind: "def", Patterns: []string{"*_pnr.def"}},
			{Kind: "lef", Patterns: []string{"*_pnr.lef", "*_lib.lef"}},
			{Kind: "spef", Patterns: []string{"*_pnr.spef.gz"}},
			{Kind: "verilog", Patterns: []string{"*_pnr.v"}},
		},
		Timeout: time.Hour,
	},
}
