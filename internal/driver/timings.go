package driver

import (
	"encoding/json"
	"fmt"

	"callgen/internal/diag"
	"callgen/internal/observ"
	"callgen/internal/source"
)

type timingPayload struct {
	Kind string `json:"kind"`
	Path string `json:"path,omitempty"`
	observ.Report
	Sigs *sigCounters `json:"signatures,omitempty"`
}

type sigCounters struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Entries  int   `json:"entries"`
	FromDisk int   `json:"from_disk"`
}

func appendTimingDiagnostic(bag *diag.Bag, payload timingPayload) {
	if bag == nil {
		return
	}
	if payload.Kind == "" {
		payload.Kind = "pipeline"
	}
	msg := fmt.Sprintf("timings (%s): total %.2f ms", payload.Kind, payload.TotalMS)

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	bag.Add(diag.Diagnostic{
		Severity: diag.SevInfo,
		Code:     diag.ObsTimings,
		Message:  msg,
		Primary:  source.Loc{File: payload.Path},
		Notes:    []diag.Note{{Loc: source.Loc{File: payload.Path}, Msg: string(data)}},
	})
}
