package inspect

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/cyyever/largedict/lib/storage"
	"github.com/cyyever/largedict/lib/util"
	"github.com/goccy/go-json"
)

// Key kinds accepted by --keys
const (
	KeysInt    = "int"
	KeysString = "string"
)

// Blob describes one stored value
type Blob struct {
	Name string `json:"name"`
	Key  string `json:"key"`
	Size int    `json:"size"`
}

// Report is the inventory of a storage location
type Report struct {
	Location   string   `json:"location"`
	Blobs      []Blob   `json:"blobs"`
	Invalid    []string `json:"invalid,omitempty"` // names that are no valid key
	TotalSize  int64    `json:"total_size"`
	AvgSize    int64    `json:"avg_size"`
	MedianSize int64    `json:"median_size"`
}

// parser turns a blob name into the printable key
func parser(kind string) (func(name string) (string, error), error) {
	switch kind {
	case KeysInt:
		codec := storage.IntKeys[int64]{}
		return func(name string) (string, error) {
			k, err := codec.Parse(name)
			return fmt.Sprint(k), err
		}, nil
	case KeysString:
		codec := storage.StringKeys[string]{}
		return func(name string) (string, error) {
			k, err := codec.Parse(name)
			return fmt.Sprintf("%q", k), err
		}, nil
	default:
		return nil, fmt.Errorf("invalid key kind %q (must be %s or %s)", kind, KeysInt, KeysString)
	}
}

// Inventory lists the blobs of backend sorted by name. Blobs whose name does
// not parse as a key of the given kind are reported as invalid.
func Inventory(backend storage.Backend, keyKind string) (*Report, error) {
	parse, err := parser(keyKind)
	if err != nil {
		return nil, err
	}

	names, err := backend.Keys()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	report := &Report{Location: backend.Location(""), Blobs: make([]Blob, 0, len(names))}
	sizes := util.NewSizeHistogram()
	for _, name := range names {
		key, err := parse(name)
		if err != nil {
			report.Invalid = append(report.Invalid, name)
			continue
		}
		blob, err := backend.Load(name)
		if err != nil {
			return nil, storage.NewError("load", name, err)
		}
		report.Blobs = append(report.Blobs, Blob{Name: name, Key: key, Size: len(blob)})
		report.TotalSize += int64(len(blob))
		sizes.AddSample(len(blob))
	}
	report.AvgSize = sizes.AverageSize()
	report.MedianSize = sizes.MedianEstimate()
	return report, nil
}

// WriteText prints the report as an aligned table
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tKEY\tSIZE")
	for _, b := range r.Blobs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\n", b.Name, b.Key, b.Size)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "\n%d blobs in %s, %d bytes total (avg %d, median ~%d)\n",
		len(r.Blobs), r.Location, r.TotalSize, r.AvgSize, r.MedianSize)
	for _, name := range r.Invalid {
		_, _ = fmt.Fprintf(w, "ignored: %s\n", name)
	}
	return nil
}

// WriteJSON prints the report as indented JSON
func (r *Report) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
