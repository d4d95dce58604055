package estimation

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	maxCustomersThreshold = 1_000_000
	maxSizeThreshold      = 1024 * 1024 * 1024 // 1GB
	maxDurationThreshold  = time.Hour
)

var p = message.NewPrinter(language.English)

// ShouldPrompt reports whether a run is big enough to ask for confirmation before starting.
func ShouldPrompt(est Estimation) bool {
	return est.TotalCustomers > maxCustomersThreshold ||
		est.EstimatedSizeBytes > maxSizeThreshold ||
		est.Duration > maxDurationThreshold
}

// PrintEstimation writes a human readable summary of est to w.
func PrintEstimation(w io.Writer, sinkName string, est Estimation) {
	p.Fprintln(w, "=================================================================")
	p.Fprintln(w, "Load Generator Run Estimation")
	p.Fprintln(w, "=================================================================")
	p.Fprintf(w, "Sink:                  %s\n", sinkName)
	p.Fprintf(w, "Workers:               %d\n", est.Workers)
	p.Fprintf(w, "Max batches/s:         %d\n", est.MaxBatchesPerSecond)
	p.Fprintf(w, "Effective batches/s:   %d\n", est.EffectiveBatchesPerSecond)
	p.Fprintf(w, "Total batches:         %d\n", est.TotalBatches)
	p.Fprintf(w, "Total customers:       %d\n", est.TotalCustomers)
	p.Fprintf(w, "Total entities:        %d\n", est.TotalEntities)
	p.Fprintf(w, "Estimated size:        %s\n", FormatBytes(est.EstimatedSizeBytes))
	p.Fprintf(w, "Duration:              %s\n", est.Duration)
	if est.ExceedsCapacity {
		p.Fprintln(w, "WARNING: requested rate exceeds estimated capacity; excess ticks will be dropped")
	}
	p.Fprintln(w, "=================================================================")
}

// DisplayEstimationAndConfirm prints est and asks on in for a yes/no answer.
func DisplayEstimationAndConfirm(out io.Writer, in io.Reader, sinkName string, est Estimation) (bool, error) {
	PrintEstimation(out, sinkName, est)
	p.Fprintln(out)
	p.Fprint(out, "This run will generate significant data. Proceed? (y/N): ")

	reader := bufio.NewReader(in)
	response, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && response != "") {
		return false, errors.Wrap(err, "reading user input")
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}
