// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package observability

import (
	"bufio"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
)

// readTextfile parses a previously written textfile. A missing file yields
// no families; a file that does not parse is treated as empty and replaced.
func readTextfile(path string) ([]*dto.MetricFamily, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by caller
	}
	defer func() { _ = f.Close() }()

	parser := expfmt.NewTextParser(model.UTF8Validation)
	parsed, err := parser.TextToMetricFamilies(f)
	if err != nil {
		return nil, nil //nolint:nilerr // a corrupt file is replaced
	}

	families := make([]*dto.MetricFamily, 0, len(parsed))
	for _, mf := range parsed {
		for _, m := range mf.GetMetric() {
			if h := m.GetHistogram(); h != nil {
				h.Bucket = dropInfBucket(h.GetBucket())
			}
		}
		families = append(families, mf)
	}
	return families, nil
}

// dropInfBucket removes the +Inf bucket the text format adds; gathered
// histograms never carry it and the encoder writes it again.
func dropInfBucket(buckets []*dto.Bucket) []*dto.Bucket {
	out := buckets[:0]
	for _, b := range buckets {
		if !math.IsInf(b.GetUpperBound(), 1) {
			out = append(out, b)
		}
	}
	return out
}

// writeTextfile writes families to a temp file next to path and renames it
// into place.
func writeTextfile(path string, families []*dto.MetricFamily) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err //nolint:wrapcheck // wrapped by caller
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	w := bufio.NewWriter(tmp)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			_ = tmp.Close()
			return err //nolint:wrapcheck // wrapped by caller
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return err //nolint:wrapcheck // wrapped by caller
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err //nolint:wrapcheck // wrapped by caller
	}
	if err := tmp.Close(); err != nil {
		return err //nolint:wrapcheck // wrapped by caller
	}
	return os.Rename(tmpName, path) //nolint:wrapcheck // wrapped by caller
}

// mergeFamilies adds current onto previous. Counters and histograms with
// the same labels are summed, gauges take the current value, and series
// only present on one side are kept as they are.
func mergeFamilies(previous, current []*dto.MetricFamily) []*dto.MetricFamily {
	byName := make(map[string]*dto.MetricFamily, len(previous)+len(current))
	for _, mf := range previous {
		byName[mf.GetName()] = mf
	}
	for _, mf := range current {
		old, ok := byName[mf.GetName()]
		if !ok || old.GetType() != mf.GetType() {
			byName[mf.GetName()] = mf
			continue
		}
		mf.Metric = mergeMetrics(mf.GetType(), old.GetMetric(), mf.GetMetric())
		byName[mf.GetName()] = mf
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	merged := make([]*dto.MetricFamily, 0, len(names))
	for _, name := range names {
		merged = append(merged, byName[name])
	}
	return merged
}

func mergeMetrics(typ dto.MetricType, previous, current []*dto.Metric) []*dto.Metric {
	byLabels := make(map[string]*dto.Metric, len(previous)+len(current))
	for _, m := range previous {
		byLabels[labelKey(m)] = m
	}
	for _, m := range current {
		key := labelKey(m)
		if old, ok := byLabels[key]; ok {
			switch typ {
			case dto.MetricType_COUNTER:
				sum := old.GetCounter().GetValue() + m.GetCounter().GetValue()
				m.Counter.Value = &sum
			case dto.MetricType_HISTOGRAM:
				addHistogram(m.GetHistogram(), old.GetHistogram())
			}
		}
		byLabels[key] = m
	}

	keys := make([]string, 0, len(byLabels))
	for key := range byLabels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	merged := make([]*dto.Metric, 0, len(keys))
	for _, key := range keys {
		merged = append(merged, byLabels[key])
	}
	return merged
}

// addHistogram adds src's observations to dst. Buckets are matched by upper
// bound; the bucket layout is fixed so both sides carry the same bounds.
func addHistogram(dst, src *dto.Histogram) {
	if dst == nil || src == nil {
		return
	}
	count := dst.GetSampleCount() + src.GetSampleCount()
	sum := dst.GetSampleSum() + src.GetSampleSum()
	dst.SampleCount = &count
	dst.SampleSum = &sum

	prev := make(map[float64]uint64, len(src.GetBucket()))
	for _, b := range src.GetBucket() {
		prev[b.GetUpperBound()] = b.GetCumulativeCount()
	}
	for _, b := range dst.GetBucket() {
		c := b.GetCumulativeCount() + prev[b.GetUpperBound()]
		b.CumulativeCount = &c
	}
}

func labelKey(m *dto.Metric) string {
	pairs := make([]string, 0, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		pairs = append(pairs, lp.GetName()+"="+lp.GetValue())
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "\x00")
}
