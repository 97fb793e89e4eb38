// Package metrics records service counters in CloudWatch Embedded Metric
// Format. A provider accumulates metrics and properties for one request
// and emits a single EMF record on Flush.
package metrics

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	errs "github.com/compiler-explorer/explain/pkg/errors"
)

// Namespace is the CloudWatch namespace all metrics are published under.
const Namespace = "CompilerExplorer"

// Provider records metrics and request properties.
type Provider interface {
	// PutMetric records a metric value under the given name.
	PutMetric(name string, value float64)

	// SetProperty attaches a property to the emitted record.
	SetProperty(name string, value string)

	// Flush emits everything recorded so far and resets the provider.
	Flush() error
}

// NoopProvider discards everything. Used in tests and when metrics are
// disabled.
type NoopProvider struct{}

func NewNoopProvider() *NoopProvider { return &NoopProvider{} }

func (n *NoopProvider) PutMetric(name string, value float64)  {}
func (n *NoopProvider) SetProperty(name string, value string) {}
func (n *NoopProvider) Flush() error                          { return nil }

// EMFProvider writes Embedded Metric Format JSON lines. The CloudWatch
// agent (or Lambda/ECS log infrastructure) turns these log lines into
// metrics without an API call per datapoint.
type EMFProvider struct {
	mu         sync.Mutex
	out        io.Writer
	metrics    map[string]float64
	order      []string
	properties map[string]string
	now        func() time.Time
}

// NewEMFProvider creates a provider writing to out; a nil out means stdout.
func NewEMFProvider(out io.Writer) *EMFProvider {
	if out == nil {
		out = os.Stdout
	}
	return &EMFProvider{
		out:        out,
		metrics:    make(map[string]float64),
		properties: make(map[string]string),
		now:        time.Now,
	}
}

func (p *EMFProvider) PutMetric(name string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, seen := p.metrics[name]; !seen {
		p.order = append(p.order, name)
	}
	p.metrics[name] += value
}

func (p *EMFProvider) SetProperty(name string, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.properties[name] = value
}

type emfMetricDef struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

type emfDirective struct {
	Namespace  string         `json:"Namespace"`
	Dimensions [][]string     `json:"Dimensions"`
	Metrics    []emfMetricDef `json:"Metrics"`
}

type emfMetadata struct {
	Timestamp         int64          `json:"Timestamp"`
	CloudWatchMetrics []emfDirective `json:"CloudWatchMetrics"`
}

// Flush writes one EMF record covering all recorded metrics, then resets
// the provider for reuse. Flushing with nothing recorded is a no-op.
func (p *EMFProvider) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.metrics) == 0 && len(p.properties) == 0 {
		return nil
	}

	defs := make([]emfMetricDef, 0, len(p.order))
	for _, name := range p.order {
		defs = append(defs, emfMetricDef{Name: name, Unit: "None"})
	}

	record := make(map[string]any, len(p.metrics)+len(p.properties)+1)
	record["_aws"] = emfMetadata{
		Timestamp: p.now().UnixMilli(),
		CloudWatchMetrics: []emfDirective{{
			Namespace:  Namespace,
			Dimensions: [][]string{{}},
			Metrics:    defs,
		}},
	}
	for name, value := range p.metrics {
		record[name] = value
	}
	for name, value := range p.properties {
		record[name] = value
	}

	line, err := json.Marshal(record)
	if err != nil {
		return errs.Wrap(err, errs.Unknown, "failed to encode metrics record")
	}
	if _, err := p.out.Write(append(line, '\n')); err != nil {
		return errs.Wrap(err, errs.Unknown, "failed to write metrics record")
	}

	p.metrics = make(map[string]float64)
	p.order = nil
	p.properties = make(map[string]string)
	return nil
}
