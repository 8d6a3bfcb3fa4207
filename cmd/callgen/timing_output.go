package main

import (
	"fmt"
	"io"
	"time"

	"callgen/internal/buildpipeline"
)

func printStageTimings(out io.Writer, timings buildpipeline.Timings) {
	if out == nil {
		return
	}
	for _, st := range []struct {
		stage buildpipeline.Stage
		verb  string
	}{
		{buildpipeline.StageExpand, "expanded"},
		{buildpipeline.StageEmit, "emitted"},
		{buildpipeline.StageWrite, "wrote"},
	} {
		if !timings.Has(st.stage) {
			continue
		}
		if _, err := fmt.Fprintf(out, "%s %.1f ms\n", st.verb, toMillis(timings.Duration(st.stage))); err != nil {
			panic(err)
		}
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
